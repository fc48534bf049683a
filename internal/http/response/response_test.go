package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/yungbote/plansync-backend/internal/domain/plans"
	"github.com/yungbote/plansync-backend/internal/services"
)

func TestFromErrorMapsServiceErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrPreconditionMissing, http.StatusBadRequest, "precondition_missing"},
		{fmt.Errorf("read: %w", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{services.ErrDuplicateContent, http.StatusConflict, "duplicate_content"},
		{fmt.Errorf("update: %w", services.ErrPreconditionFailed), http.StatusPreconditionFailed, "precondition_failed"},
		{fmt.Errorf("x: %w: dial tcp", services.ErrStoreUnavailable), http.StatusServiceUnavailable, "store_unavailable"},
		{services.ErrTokenMissing, http.StatusUnauthorized, "unauthorized"},
		{services.ErrTokenFormat, http.StatusBadRequest, "invalid_token_format"},
		{fmt.Errorf("%w: bad sig", services.ErrTokenInvalid), http.StatusForbidden, "invalid_token"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		got := FromError(tc.err)
		if got.Status != tc.status || got.Code != tc.code {
			t.Errorf("FromError(%v) = %d %s, want %d %s", tc.err, got.Status, got.Code, tc.status, tc.code)
		}
	}
}

func TestFromErrorKeepsValidationDetails(t *testing.T) {
	t.Parallel()
	ve := &services.ValidationError{Fields: []plans.FieldError{{Field: "planType", Rule: "required"}}}
	got := FromError(ve)
	if got.Status != http.StatusBadRequest || got.Code != "invalid_shape" {
		t.Fatalf("unexpected mapping: %d %s", got.Status, got.Code)
	}
	fields, ok := got.Details.([]plans.FieldError)
	if !ok || len(fields) != 1 || fields[0].Field != "planType" {
		t.Fatalf("details not carried: %#v", got.Details)
	}
}

func TestFromErrorHidesOutageDetail(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("read: %w: redis 10.0.0.4:6379 refused", services.ErrStoreUnavailable)
	got := FromError(cause)
	if got.Message != services.ErrStoreUnavailable.Error() {
		t.Fatalf("internal detail leaked: %q", got.Message)
	}
	if !errors.Is(got, cause) {
		t.Fatalf("cause dropped for logging")
	}
}

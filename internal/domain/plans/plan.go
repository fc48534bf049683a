// Package plans defines the plan document shape accepted by the API and the
// typed view the index projection reads.
package plans

const (
	TypePlan = "plan"
)

type Plan struct {
	Org                string              `json:"_org" validate:"required"`
	ObjectID           string              `json:"objectId" validate:"required"`
	ObjectType         string              `json:"objectType" validate:"required"`
	PlanType           string              `json:"planType" validate:"required"`
	CreationDate       string              `json:"creationDate" validate:"required"`
	PlanCostShares     *CostShare          `json:"planCostShares" validate:"required"`
	LinkedPlanServices []LinkedPlanService `json:"linkedPlanServices" validate:"required,dive"`
}

type CostShare struct {
	Deductible *float64 `json:"deductible" validate:"required,gte=0"`
	Copay      *float64 `json:"copay" validate:"required,gte=0"`
	Org        string   `json:"_org" validate:"required"`
	ObjectID   string   `json:"objectId" validate:"required"`
	ObjectType string   `json:"objectType" validate:"required"`
}

type LinkedPlanService struct {
	LinkedService         *Service   `json:"linkedService" validate:"required"`
	PlanserviceCostShares *CostShare `json:"planserviceCostShares" validate:"required"`
	Org                   string     `json:"_org" validate:"required"`
	ObjectID              string     `json:"objectId" validate:"required"`
	ObjectType            string     `json:"objectType" validate:"required"`
}

type Service struct {
	Org        string `json:"_org" validate:"required"`
	ObjectID   string `json:"objectId" validate:"required"`
	ObjectType string `json:"objectType" validate:"required"`
	Name       string `json:"name" validate:"required"`
}

// Patch mirrors Plan with every field optional. Fields that are present must
// still satisfy the Plan rules.
type Patch struct {
	Org                *string                  `json:"_org" validate:"omitempty,min=1"`
	ObjectID           *string                  `json:"objectId" validate:"omitempty,min=1"`
	ObjectType         *string                  `json:"objectType" validate:"omitempty,min=1"`
	PlanType           *string                  `json:"planType" validate:"omitempty,min=1"`
	CreationDate       *string                  `json:"creationDate" validate:"omitempty,min=1"`
	PlanCostShares     *CostSharePatch          `json:"planCostShares" validate:"omitempty"`
	LinkedPlanServices []LinkedPlanServicePatch `json:"linkedPlanServices" validate:"omitempty,dive"`
}

type CostSharePatch struct {
	Deductible *float64 `json:"deductible" validate:"omitempty,gte=0"`
	Copay      *float64 `json:"copay" validate:"omitempty,gte=0"`
	Org        *string  `json:"_org" validate:"omitempty,min=1"`
	ObjectID   *string  `json:"objectId" validate:"omitempty,min=1"`
	ObjectType *string  `json:"objectType" validate:"omitempty,min=1"`
}

type LinkedPlanServicePatch struct {
	LinkedService         *ServicePatch   `json:"linkedService" validate:"omitempty"`
	PlanserviceCostShares *CostSharePatch `json:"planserviceCostShares" validate:"omitempty"`
	Org                   *string         `json:"_org" validate:"omitempty,min=1"`
	ObjectID              *string         `json:"objectId" validate:"omitempty,min=1"`
	ObjectType            *string         `json:"objectType" validate:"omitempty,min=1"`
}

type ServicePatch struct {
	Org        *string `json:"_org" validate:"omitempty,min=1"`
	ObjectID   *string `json:"objectId" validate:"omitempty,min=1"`
	ObjectType *string `json:"objectType" validate:"omitempty,min=1"`
	Name       *string `json:"name" validate:"omitempty,min=1"`
}

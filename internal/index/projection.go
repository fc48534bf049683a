package index

import "github.com/yungbote/plansync-backend/internal/domain/plans"

// Project flattens a plan into documents in write order: the plan, its cost
// shares, then each linked plan service followed by its own children.
// Children of the plan route to the plan; grandchildren route to their
// linked plan service.
func Project(p *plans.Plan) []Document {
	docs := make([]Document, 0, 2+3*len(p.LinkedPlanServices))
	docs = append(docs, Document{
		ID:       p.ObjectID,
		Relation: RelPlan,
		Routing:  p.ObjectID,
		Body: map[string]any{
			"_org":         p.Org,
			"objectId":     p.ObjectID,
			"objectType":   p.ObjectType,
			"planType":     p.PlanType,
			"creationDate": p.CreationDate,
		},
	})
	docs = append(docs, costShareDoc(p.PlanCostShares, RelPlanCostShares, p.ObjectID))

	for _, lps := range p.LinkedPlanServices {
		docs = append(docs, Document{
			ID:       lps.ObjectID,
			Relation: RelLinkedPlanServices,
			Parent:   p.ObjectID,
			Routing:  p.ObjectID,
			Body: map[string]any{
				"_org":       lps.Org,
				"objectId":   lps.ObjectID,
				"objectType": lps.ObjectType,
			},
		})
		docs = append(docs, Document{
			ID:       lps.LinkedService.ObjectID,
			Relation: RelLinkedService,
			Parent:   lps.ObjectID,
			Routing:  lps.ObjectID,
			Body: map[string]any{
				"name":       lps.LinkedService.Name,
				"_org":       lps.LinkedService.Org,
				"objectId":   lps.LinkedService.ObjectID,
				"objectType": lps.LinkedService.ObjectType,
			},
		})
		docs = append(docs, costShareDoc(lps.PlanserviceCostShares, RelPlanserviceCostShares, lps.ObjectID))
	}
	return docs
}

func costShareDoc(cs *plans.CostShare, rel Relation, parent string) Document {
	body := map[string]any{
		"_org":       cs.Org,
		"objectId":   cs.ObjectID,
		"objectType": cs.ObjectType,
	}
	if cs.Deductible != nil {
		body["deductible"] = *cs.Deductible
	}
	if cs.Copay != nil {
		body["copay"] = *cs.Copay
	}
	return Document{ID: cs.ObjectID, Relation: rel, Parent: parent, Routing: parent, Body: body}
}

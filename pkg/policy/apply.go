package policy

// PolicyApplication marks one template as applied or removed on an
// application point.
type PolicyApplication struct {
	Policy string `json:"policy"`
	Used   bool   `json:"used"`
}

// ApplicationPoint carries the application decisions for one interface
// node in a batch apply request.
type ApplicationPoint struct {
	ID       string              `json:"id"`
	Policies []PolicyApplication `json:"policies"`
}

// BatchApplyPayload is the request body for the batch apply endpoint,
// which assigns and unassigns templates on application points in one
// call.
type BatchApplyPayload struct {
	ApplicationPoints []ApplicationPoint `json:"application_points"`
}

// NewBatchApply builds a batch apply payload for ctID: apply lists the
// application point ids to assign, unapply the ones to release.
func NewBatchApply(ctID string, apply, unapply []string) BatchApplyPayload {
	points := make([]ApplicationPoint, 0, len(apply)+len(unapply))
	for _, id := range apply {
		points = append(points, ApplicationPoint{
			ID:       id,
			Policies: []PolicyApplication{{Policy: ctID, Used: true}},
		})
	}
	for _, id := range unapply {
		points = append(points, ApplicationPoint{
			ID:       id,
			Policies: []PolicyApplication{{Policy: ctID, Used: false}},
		})
	}
	return BatchApplyPayload{ApplicationPoints: points}
}

// Empty reports whether the payload would change nothing.
func (p BatchApplyPayload) Empty() bool {
	return len(p.ApplicationPoints) == 0
}

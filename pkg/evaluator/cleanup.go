package evaluator

import "github.com/takirala/dcos-commons/pkg/offer"

// UnreserveRecommendations produces one Unreserve recommendation per
// reserved resource on task, and one DestroyVolume recommendation per
// resource carrying a persistent-volume record. These do not require an
// offer batch: unreserving previously-held resources is a direct release,
// not a match against newly-offered ones (the master still routes the
// operation through an offer's agent, supplied by caller as agentID/
// offerID once that agent's next offer arrives).
func UnreserveRecommendations(task offer.TaskInfo, offerID, agentID string) []Recommendation {
	var recs []Recommendation
	for _, res := range task.Resources {
		if res.Reservation == nil {
			continue
		}
		if res.Volume != nil {
			recs = append(recs, Recommendation{
				Kind:     KindDestroyVolume,
				OfferID:  offerID,
				AgentID:  agentID,
				TaskName: task.Name,
				Resource: res,
				Volume:   res.Volume,
			})
		}
		recs = append(recs, Recommendation{
			Kind:     KindUnreserve,
			OfferID:  offerID,
			AgentID:  agentID,
			TaskName: task.Name,
			Resource: res,
		})
	}
	return recs
}

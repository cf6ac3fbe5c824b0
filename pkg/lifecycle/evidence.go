package lifecycle

import "github.com/athenamem/episodic/pkg/models"

// RepairEvidence fixes an unknown or corrupted evidence_type read back from
// storage by falling back to EvidenceObserved, the most conservative
// assumption (treat unverifiable provenance as merely observed, not as a
// stronger claim like inferred or deduced). Returns true if a repair was
// made. This only ever runs against rows already in storage — the
// ingestion-time constructor (models.NewEvent) rejects an invalid
// evidence_type outright rather than silently repairing it.
func RepairEvidence(e *models.Event) bool {
	if e.Evidence.Type.Valid() {
		return false
	}
	e.Evidence.Type = models.EvidenceObserved
	return true
}

// progress.go - Batch progress snapshot

package processor

// Progress is reported at every chunk start and completion.
type Progress struct {
	Current           int    `json:"current" bson:"current"`
	Completed         int    `json:"completed" bson:"completed"`
	Total             int    `json:"total" bson:"total"`
	ModelLabel        string `json:"model_label,omitempty" bson:"model_label,omitempty"`
	CredentialOrdinal int    `json:"credential_ordinal,omitempty" bson:"credential_ordinal,omitempty"`
}

// Percent is the share of finished chunks, 0-100.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

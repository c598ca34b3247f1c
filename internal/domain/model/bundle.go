package model

// Bundle is the catalog entry for an eSIM data bundle. A copy of it is frozen
// into every Order (and later UserProfileBundle) so that catalog edits cannot
// retroactively change what a customer bought.
type Bundle struct {
	Code             string   `json:"bundle_code"`
	InfoCode         string   `json:"bundle_info_code,omitempty"`
	Name             string   `json:"bundle_name"`
	Price            int64    `json:"price"` // minor units
	Currency         string   `json:"currency"`
	Validity         string   `json:"validity,omitempty"`
	GPRSLimitDisplay string   `json:"gprs_limit_display,omitempty"`
	Countries        []string `json:"countries,omitempty"`
	Stockable        bool     `json:"is_stockable,omitempty"`
}

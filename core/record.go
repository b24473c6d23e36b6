package core

// ExtractedRecord is the structured customer record populated by the
// Extraction stage. Every field is optional: a field is set only when the
// user explicitly stated the value in the conversation. Inferring or
// guessing values (e.g. deriving a budget from indirect language) is
// forbidden by contract, which is why all fields are pointers — absence is
// meaningful and distinct from a zero value.
type ExtractedRecord struct {
	Name            *string  `json:"name,omitempty"`
	Email           *string  `json:"email,omitempty"`
	Phone           *string  `json:"phone,omitempty"`
	Company         *string  `json:"company,omitempty"`
	Budget          *float64 `json:"budget,omitempty"`
	ProductInterest *string  `json:"product_interest,omitempty"`
	Timeline        *string  `json:"timeline,omitempty"`

	// LowConfidence marks a best-effort record that failed schema validation
	// twice and was accepted in degraded form.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Merge combines an incoming record into the receiver. Fields set in the
// incoming record win; fields absent in the incoming record keep their
// existing values. This enforces the monotonic-fill invariant: a stage can
// add or overwrite fields within a turn but never erase one.
func (r ExtractedRecord) Merge(in ExtractedRecord) ExtractedRecord {
	out := r
	if in.Name != nil {
		out.Name = in.Name
	}
	if in.Email != nil {
		out.Email = in.Email
	}
	if in.Phone != nil {
		out.Phone = in.Phone
	}
	if in.Company != nil {
		out.Company = in.Company
	}
	if in.Budget != nil {
		out.Budget = in.Budget
	}
	if in.ProductInterest != nil {
		out.ProductInterest = in.ProductInterest
	}
	if in.Timeline != nil {
		out.Timeline = in.Timeline
	}
	out.LowConfidence = r.LowConfidence || in.LowConfidence
	return out
}

// IsEmpty reports whether no field has been populated.
func (r ExtractedRecord) IsEmpty() bool {
	return r.Name == nil && r.Email == nil && r.Phone == nil &&
		r.Company == nil && r.Budget == nil && r.ProductInterest == nil &&
		r.Timeline == nil
}

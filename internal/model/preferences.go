package model

// Preferences is the per-user notification preference record. Each
// category has an enable toggle; SoundEnabled controls the terminal
// bell. Preferences gate user-visible effects (toast, sound) only —
// ingestion into the store is never gated.
type Preferences struct {
	NewLeadEnabled     bool `json:"new_lead_enabled"`
	LeadStatusEnabled  bool `json:"lead_status_enabled"`
	QuoteStatusEnabled bool `json:"quote_status_enabled"`
	InvoicePaidEnabled bool `json:"invoice_paid_enabled"`
	SystemEnabled      bool `json:"system_enabled"`
	SoundEnabled       bool `json:"sound_enabled"`
}

// DefaultPreferences returns the record used before the server has one:
// every category and the sound flag enabled.
func DefaultPreferences() Preferences {
	return Preferences{
		NewLeadEnabled:     true,
		LeadStatusEnabled:  true,
		QuoteStatusEnabled: true,
		InvoicePaidEnabled: true,
		SystemEnabled:      true,
		SoundEnabled:       true,
	}
}

// Allows reports whether notifications of the given type may produce
// user-visible effects.
func (p Preferences) Allows(t NotificationType) bool {
	switch t {
	case TypeNewLead:
		return p.NewLeadEnabled
	case TypeLeadStatus:
		return p.LeadStatusEnabled
	case TypeQuoteStatus:
		return p.QuoteStatusEnabled
	case TypeInvoicePaid:
		return p.InvoicePaidEnabled
	case TypeSystem:
		return p.SystemEnabled
	default:
		// Unknown categories are surfaced rather than silently dropped.
		return true
	}
}

// PreferencesPatch is a partial update of a Preferences record. Nil
// fields are omitted from the PATCH body and leave the prior server
// value untouched.
type PreferencesPatch struct {
	NewLeadEnabled     *bool `json:"new_lead_enabled,omitempty"`
	LeadStatusEnabled  *bool `json:"lead_status_enabled,omitempty"`
	QuoteStatusEnabled *bool `json:"quote_status_enabled,omitempty"`
	InvoicePaidEnabled *bool `json:"invoice_paid_enabled,omitempty"`
	SystemEnabled      *bool `json:"system_enabled,omitempty"`
	SoundEnabled       *bool `json:"sound_enabled,omitempty"`
}

// IsEmpty reports whether the patch sets no fields at all.
func (p PreferencesPatch) IsEmpty() bool {
	return p.NewLeadEnabled == nil &&
		p.LeadStatusEnabled == nil &&
		p.QuoteStatusEnabled == nil &&
		p.InvoicePaidEnabled == nil &&
		p.SystemEnabled == nil &&
		p.SoundEnabled == nil
}

// Apply merges the set fields of the patch into prefs.
func (p PreferencesPatch) Apply(prefs *Preferences) {
	if p.NewLeadEnabled != nil {
		prefs.NewLeadEnabled = *p.NewLeadEnabled
	}
	if p.LeadStatusEnabled != nil {
		prefs.LeadStatusEnabled = *p.LeadStatusEnabled
	}
	if p.QuoteStatusEnabled != nil {
		prefs.QuoteStatusEnabled = *p.QuoteStatusEnabled
	}
	if p.InvoicePaidEnabled != nil {
		prefs.InvoicePaidEnabled = *p.InvoicePaidEnabled
	}
	if p.SystemEnabled != nil {
		prefs.SystemEnabled = *p.SystemEnabled
	}
	if p.SoundEnabled != nil {
		prefs.SoundEnabled = *p.SoundEnabled
	}
}

// Diff returns a patch containing only the fields where next differs
// from prev. Used by the preference form so an edit submits exactly
// what changed.
func Diff(prev, next Preferences) PreferencesPatch {
	var patch PreferencesPatch
	if prev.NewLeadEnabled != next.NewLeadEnabled {
		patch.NewLeadEnabled = &next.NewLeadEnabled
	}
	if prev.LeadStatusEnabled != next.LeadStatusEnabled {
		patch.LeadStatusEnabled = &next.LeadStatusEnabled
	}
	if prev.QuoteStatusEnabled != next.QuoteStatusEnabled {
		patch.QuoteStatusEnabled = &next.QuoteStatusEnabled
	}
	if prev.InvoicePaidEnabled != next.InvoicePaidEnabled {
		patch.InvoicePaidEnabled = &next.InvoicePaidEnabled
	}
	if prev.SystemEnabled != next.SystemEnabled {
		patch.SystemEnabled = &next.SystemEnabled
	}
	if prev.SoundEnabled != next.SoundEnabled {
		patch.SoundEnabled = &next.SoundEnabled
	}
	return patch
}

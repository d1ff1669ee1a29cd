package domain

// ResponseRule is one entry of the auto-response table. Either the legacy
// single-command form (Command/Response) or the pattern form
// (Patterns/Responses) is populated, never both.
type ResponseRule struct {
	ID       int64
	Command  string
	Response string

	Patterns  []string
	Responses []string
}

// IsLegacy reports whether the rule uses the old exact-command form
func (r *ResponseRule) IsLegacy() bool {
	return r.Command != ""
}

// FAQEntry is one question/answer pair the knowledge oracle may draw on
type FAQEntry struct {
	ID       int64
	Question string
	Answer   string
}

// Good is one auto-delivery product with its remaining stock items
type Good struct {
	ID    int64
	Name  string
	Items []string
}

// Order is the minimal order shape used by follow-up messages
type Order struct {
	ID        string
	BuyerName string
	BuyerNode string
	Price     string
	Unit      string
	Name      string
}

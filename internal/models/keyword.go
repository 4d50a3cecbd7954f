package models

// Keyword is a single ranked term produced by the keyword extractor
type Keyword struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// BookMeta is one book's metadata row extracted from a spreadsheet export,
// keyed by product code
type BookMeta struct {
	ProductCode string            `json:"product_code"`
	Title       string            `json:"title,omitempty"`
	Author      string            `json:"author,omitempty"`
	Publisher   string            `json:"publisher,omitempty"`
	ISBN        string            `json:"isbn,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

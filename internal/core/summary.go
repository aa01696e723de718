package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// CategoryCount is the number of contracts recorded under a category.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
)

const maxPageSize = 100

type queryStringValues struct {
	Status string
	Limit  int
	Offset int
}

func retrieveUrlQueryValues(r *http.Request) *queryStringValues {
	var queryValues = &queryStringValues{}

	// Parse pagination params
	limitStr := r.URL.Query().Get("limit")
	pageStr := r.URL.Query().Get("page")

	// Default pagination values
	offset := 0
	limit := 20

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, maxPageSize)
		}
	}
	queryValues.Limit = limit

	if pageStr != "" {
		if parsedPage, err := strconv.Atoi(pageStr); err == nil && parsedPage >= 1 {
			offset = (parsedPage - 1) * limit
		}
	}
	queryValues.Offset = offset

	queryValues.Status = r.URL.Query().Get("status")

	return queryValues
}

// amounts leave the API as JSON numbers; the ledger keeps full precision
func toFloat(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

package loyalty

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/common"
	"github.com/noah-isme/pricing-api/internal/money"
)

// Handler exposes the point conversions for UI display of redeemable value.
type Handler struct {
	Currency     money.Currency
	ExchangeRate decimal.Decimal
	Minimum      int64
}

// PointsValue converts ?points=N into its currency value.
func (h Handler) PointsValue(w http.ResponseWriter, r *http.Request) {
	points, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("points")), 10, 64)
	if err != nil || points < 0 {
		common.WriteAppError(w, common.NewAppError(common.CodeBadRequest, "points must be a non-negative integer", http.StatusBadRequest, err))
		return
	}
	amount, err := PointsToAmount(points, h.ExchangeRate, h.Currency.Decimals, h.Currency.Policy, h.Currency.Midpoint)
	if err != nil {
		common.WriteAppError(w, common.NewAppError(common.CodeInternal, "unable to convert points", http.StatusInternalServerError, err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"points":       points,
			"amount":       amount,
			"currency":     h.Currency.Code,
			"meetsMinimum": CheckMinimumUsage(points, h.Minimum),
		},
	})
}

// PointsForAmount converts ?amount=X into the points it is worth.
func (h Handler) PointsForAmount(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("amount")))
	if err != nil || amount.IsNegative() {
		common.WriteAppError(w, common.NewAppError(common.CodeBadRequest, "amount must be a non-negative decimal", http.StatusBadRequest, err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"amount":   amount,
			"currency": h.Currency.Code,
			"points":   AmountToPoints(amount, h.ExchangeRate),
		},
	})
}

package pricing

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/cart"
	"github.com/noah-isme/pricing-api/internal/common"
	"github.com/noah-isme/pricing-api/internal/discount"
	"github.com/noah-isme/pricing-api/internal/obs"
	"github.com/noah-isme/pricing-api/internal/shipping"
	"github.com/noah-isme/pricing-api/internal/tax"
)

// QuoteLine mirrors one cart line in the quote request payload.
type QuoteLine struct {
	ProductID                string          `json:"productId" validate:"required,uuid"`
	UnitPrice                decimal.Decimal `json:"unitPrice"`
	Qty                      int             `json:"qty" validate:"gt=0"`
	ShipEnabled              bool            `json:"shipEnabled"`
	FreeShipping             bool            `json:"freeShipping"`
	AdditionalShippingCharge decimal.Decimal `json:"additionalShippingCharge"`
	TaxCategory              string          `json:"taxCategory"`
}

// QuoteDiscount is a pre-resolved discount supplied by the caller.
type QuoteDiscount struct {
	ID         string          `json:"id" validate:"required,uuid"`
	Kind       string          `json:"kind" validate:"omitempty,oneof=fixed percent"`
	Scope      string          `json:"scope" validate:"omitempty,oneof=subtotal shipping total"`
	Amount     decimal.Decimal `json:"amount"`
	PercentBps int32           `json:"percentBps"`
}

// QuoteAdjustment is one row of the customer-group shipping adjustment table.
type QuoteAdjustment struct {
	GroupID    string          `json:"groupId" validate:"required,uuid"`
	Kind       string          `json:"kind" validate:"omitempty,oneof=fixed percent percentage"`
	PercentBps int32           `json:"percentBps"`
	Amount     decimal.Decimal `json:"amount"`
}

// QuoteRequest is the POST /v1/quotes payload.
type QuoteRequest struct {
	Currency          string            `json:"currency" validate:"required"`
	CustomerLocation  string            `json:"customerLocation"`
	TaxExempt         bool              `json:"taxExempt"`
	FreeShipping      bool              `json:"freeShipping"`
	GroupFreeShipping bool              `json:"groupFreeShipping"`
	RedeemPoints      int64             `json:"redeemPoints" validate:"gte=0"`
	GroupIDs          []string          `json:"groupIds" validate:"dive,uuid"`
	Lines             []QuoteLine       `json:"lines" validate:"required,min=1,dive"`
	Discounts         []QuoteDiscount   `json:"discounts" validate:"dive"`
	GroupAdjustments  []QuoteAdjustment `json:"groupAdjustments" validate:"dive"`
}

// Handler exposes the pricing engine over HTTP.
type Handler struct {
	Settings Settings
	Tax      *tax.Calculator
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Quote computes the itemized order total for the submitted cart snapshot.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		countQuote("invalid")
		common.WriteAppError(w, common.NewAppError(common.CodeBadRequest, "invalid JSON payload", http.StatusBadRequest, err))
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			countQuote("invalid")
			common.WriteAppError(w, &common.AppError{
				Code:       common.CodeValidation,
				Message:    "invalid quote payload",
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
				Details:    err.Error(),
			})
			return
		}
	}

	snapshot, discounts, groups, err := h.buildInputs(req)
	if err != nil {
		countQuote("invalid")
		common.WriteAppError(w, err)
		return
	}

	engine := &Engine{
		Tax:       h.Tax,
		Discounts: discounts,
		Groups:    groups,
		Settings:  h.Settings,
	}
	result, err := engine.ComputeOrderTotal(r.Context(), snapshot)
	if err != nil {
		h.writeError(w, err)
		return
	}

	countQuote("ok")
	if obs.QuoteDuration != nil {
		obs.QuoteDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func countQuote(result string) {
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) buildInputs(req QuoteRequest) (cart.Cart, StaticDiscounts, StaticGroups, error) {
	snapshot := cart.Cart{
		Currency:         req.Currency,
		CustomerLocation: req.CustomerLocation,
		TaxExempt:        req.TaxExempt,
		FreeShipping:     req.FreeShipping,
		RedeemPoints:     req.RedeemPoints,
	}
	for _, raw := range req.Lines {
		productID, err := uuid.Parse(raw.ProductID)
		if err != nil {
			return cart.Cart{}, nil, StaticGroups{}, invalidQuote("invalid product id", err)
		}
		snapshot.Lines = append(snapshot.Lines, cart.Line{
			ProductID:                productID,
			UnitPrice:                raw.UnitPrice,
			Qty:                      raw.Qty,
			ShipEnabled:              raw.ShipEnabled,
			FreeShipping:             raw.FreeShipping,
			AdditionalShippingCharge: raw.AdditionalShippingCharge,
			TaxCategory:              raw.TaxCategory,
		})
	}
	for _, raw := range req.GroupIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return cart.Cart{}, nil, StaticGroups{}, invalidQuote("invalid group id", err)
		}
		snapshot.GroupIDs = append(snapshot.GroupIDs, id)
	}

	discounts := make(StaticDiscounts, 0, len(req.Discounts))
	for _, raw := range req.Discounts {
		id, err := uuid.Parse(raw.ID)
		if err != nil {
			return cart.Cart{}, nil, StaticGroups{}, invalidQuote("invalid discount id", err)
		}
		kind := discount.Kind(raw.Kind)
		if kind == "" {
			kind = discount.KindFixed
		}
		scope := discount.Scope(raw.Scope)
		if scope == "" {
			scope = discount.ScopeSubtotal
		}
		discounts = append(discounts, discount.Discount{
			ID:         id,
			Kind:       kind,
			Scope:      scope,
			Amount:     raw.Amount,
			PercentBps: raw.PercentBps,
		})
	}

	groups := StaticGroups{FreeShipping: req.GroupFreeShipping}
	for _, raw := range req.GroupAdjustments {
		id, err := uuid.Parse(raw.GroupID)
		if err != nil {
			return cart.Cart{}, nil, StaticGroups{}, invalidQuote("invalid adjustment group id", err)
		}
		kind, err := shipping.ParseAdjustmentKind(raw.Kind)
		if err != nil {
			return cart.Cart{}, nil, StaticGroups{}, invalidQuote(err.Error(), err)
		}
		groups.Table = append(groups.Table, shipping.GroupAdjustment{
			GroupID:    id,
			Kind:       kind,
			PercentBps: raw.PercentBps,
			Amount:     raw.Amount,
		})
	}
	return snapshot, discounts, groups, nil
}

func invalidQuote(message string, err error) *common.AppError {
	return common.NewAppError(common.CodeValidation, message, http.StatusBadRequest, err)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrInvalidInput):
		countQuote("invalid")
		err = invalidQuote(err.Error(), err)
	case errors.Is(err, ErrCollaborator):
		countQuote("collaborator_error")
		h.Logger.Error().Err(err).Msg("quote collaborator failure")
		err = common.NewAppError(common.CodeDependency, "upstream resolver failed", http.StatusBadGateway, err)
	default:
		countQuote("error")
		h.Logger.Error().Err(err).Msg("quote computation failed")
		err = common.NewAppError(common.CodeInternal, "unable to compute order total", http.StatusInternalServerError, err)
	}
	common.WriteAppError(w, err)
}

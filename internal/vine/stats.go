package vine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/VineLedger/internal/model"
)

// MonthlyValue is the computed value of the orders placed in one month.
type MonthlyValue struct {
	Month string          `json:"month"`
	Value decimal.Decimal `json:"value"`
	Count int             `json:"count"`
}

// Stats summarizes an upload for the dashboard.
type Stats struct {
	TotalOrders     int             `json:"totalOrders"`
	CancelledOrders int             `json:"cancelledOrders"`
	ActiveOrders    int             `json:"activeOrders"`
	TotalETV        decimal.Decimal `json:"totalAmazonValue"`
	TotalComputed   decimal.Decimal `json:"totalComputedValue"`
	TotalUserValue  decimal.Decimal `json:"totalUserValue"`
	AvgETV          decimal.Decimal `json:"avgAmazonValue"`
	AvgComputed     decimal.Decimal `json:"avgComputedValue"`
	AvgUserValue    decimal.Decimal `json:"avgUserValue"`
	Monthly         []MonthlyValue  `json:"monthly"`
}

// UploadStats computes the dashboard summary of an upload. Averages are
// taken over all orders, missing values counting as zero.
func (s *Service) UploadStats(ctx context.Context, accountID, uploadID string) (*Stats, error) {
	upload, err := s.ownedUpload(ctx, accountID, uploadID)
	if err != nil {
		return nil, err
	}
	views, err := s.allOrders(ctx, upload.ID)
	if err != nil {
		return nil, err
	}
	return summarize(views), nil
}

func summarize(views []model.OrderView) *Stats {
	st := &Stats{Monthly: []MonthlyValue{}}
	months := make(map[string]*MonthlyValue)
	for _, v := range views {
		st.TotalOrders++
		if v.Cancelled {
			st.CancelledOrders++
		}
		st.TotalETV = st.TotalETV.Add(orZero(v.EstimatedValue))
		st.TotalComputed = st.TotalComputed.Add(orZero(v.ComputedValue))
		st.TotalUserValue = st.TotalUserValue.Add(orZero(v.UserValue))
		if v.OrderDate == nil {
			continue
		}
		key := v.OrderDate.UTC().Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthlyValue{Month: key}
			months[key] = m
		}
		m.Value = m.Value.Add(orZero(v.ComputedValue))
		m.Count++
	}
	st.ActiveOrders = st.TotalOrders - st.CancelledOrders
	if st.TotalOrders > 0 {
		n := decimal.NewFromInt(int64(st.TotalOrders))
		st.AvgETV = st.TotalETV.Div(n).Round(2)
		st.AvgComputed = st.TotalComputed.Div(n).Round(2)
		st.AvgUserValue = st.TotalUserValue.Div(n).Round(2)
	}
	for _, m := range months {
		st.Monthly = append(st.Monthly, *m)
	}
	sort.Slice(st.Monthly, func(i, j int) bool { return st.Monthly[i].Month < st.Monthly[j].Month })
	return st
}

func orZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

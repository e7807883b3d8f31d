package midtrans

import (
	"context"
	"errors"
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

type CheckoutRequest struct {
	OrderId     string
	AmountCents int64
	ItemId      string
	ItemName    string
	MemberName  string
	FinishURL   string
}

type CheckoutResponse struct {
	OrderId     string
	Token       string
	RedirectURL string
}

// CheckoutGateway opens a hosted payment page for an order.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}

type SnapCheckout struct {
	client snap.Client
}

func NewSnapCheckout(serverKey string, production bool) (*SnapCheckout, error) {
	if serverKey == "" {
		return nil, errors.New("midtrans server key is not configured")
	}
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	c := &SnapCheckout{}
	c.client.New(serverKey, env)
	return c, nil
}

func (c *SnapCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	// Snap takes whole currency units.
	gross := req.AmountCents / 100
	if gross <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive, got %d cents", req.AmountCents)
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.OrderId,
			GrossAmt: gross,
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.ItemId,
				Price: gross,
				Qty:   1,
				Name:  req.ItemName,
			},
		},
		EnabledPayments: snap.AllSnapPaymentType,
	}
	if req.MemberName != "" {
		snapReq.CustomerDetail = &midtrans.CustomerDetails{FName: req.MemberName}
	}
	if req.FinishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: req.FinishURL}
	}

	resp, midErr := c.client.CreateTransaction(snapReq)
	if midErr != nil {
		return nil, fmt.Errorf("midtrans error: %v", midErr.GetMessage())
	}
	return &CheckoutResponse{
		OrderId:     req.OrderId,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

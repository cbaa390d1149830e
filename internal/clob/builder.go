package clob

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

const (
	// USDC has 6 decimals on Polygon.
	usdcDecimals = 1e6

	// Prices on these markets move in whole cents.
	priceIncrement = 0.01

	// MinSellPrice is the lowest tradable price. Stop-loss sells go out
	// at this price so they match against whatever bids exist.
	MinSellPrice = priceIncrement

	defaultFeeRateBps        = 0
	defaultExpirationSeconds = 3600
)

// BuilderConfig selects the funding mode for built orders.
// With a funder address set, the funder wallet holds the USDC and the
// local wallet only signs (Polymarket proxy-wallet setups).
type BuilderConfig struct {
	FunderAddress string
	SignatureType int
}

// OrderBuilder constructs and signs orders for the CLOB.
type OrderBuilder struct {
	signer  *wallet.Signer
	maker   common.Address
	sigType uint8
	nonce   *big.Int
}

// NewOrderBuilder creates an OrderBuilder for the given wallet.
func NewOrderBuilder(w *wallet.Wallet, cfg BuilderConfig) *OrderBuilder {
	maker := w.Address()
	if cfg.FunderAddress != "" {
		maker = common.HexToAddress(cfg.FunderAddress)
	}
	return &OrderBuilder{
		signer:  wallet.NewSigner(w),
		maker:   maker,
		sigType: uint8(cfg.SignatureType),
		nonce:   big.NewInt(0),
	}
}

// Maker returns the address funding built orders.
func (b *OrderBuilder) Maker() common.Address {
	return b.maker
}

// BuildParams holds parameters for building an order.
type BuildParams struct {
	TokenID    string
	Side       OrderSide
	Price      float64 // in (0, 1), rounded to the price increment
	Shares     float64 // outcome tokens
	OrderType  OrderType
	Expiration int64 // unix seconds, 0 for default
}

// Build creates a signed order request ready for submission.
func (b *OrderBuilder) Build(params BuildParams) (*OrderRequest, error) {
	price := RoundPrice(params.Price)
	if price <= 0 || price >= 1 {
		return nil, fmt.Errorf("price must be between 0 and 1 exclusive, got %f", params.Price)
	}
	if params.Shares <= 0 {
		return nil, fmt.Errorf("shares must be positive, got %f", params.Shares)
	}

	salt, err := generateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	tokenIDBig, ok := new(big.Int).SetString(params.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token ID: %s", params.TokenID)
	}

	// BUY: maker pays USDC (shares*price), receives shares.
	// SELL: maker pays shares, receives USDC (shares*price).
	sharesWei := toUSDCWei(params.Shares)
	costWei := toUSDCWei(params.Shares * price)

	var makerAmount, takerAmount *big.Int
	if params.Side == OrderSideBuy {
		makerAmount, takerAmount = costWei, sharesWei
	} else {
		makerAmount, takerAmount = sharesWei, costWei
	}

	expiration := params.Expiration
	if expiration == 0 {
		expiration = time.Now().Unix() + defaultExpirationSeconds
	}

	order := &wallet.Order{
		Salt:          salt,
		Maker:         b.maker,
		Signer:        b.signer.Address(),
		Taker:         common.Address{}, // any taker
		TokenID:       tokenIDBig,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Expiration:    big.NewInt(expiration),
		Nonce:         new(big.Int).Set(b.nonce),
		FeeRateBps:    big.NewInt(defaultFeeRateBps),
		Side:          sideToUint8(params.Side),
		SignatureType: b.sigType,
	}

	signature, err := b.signer.SignOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}

	return &OrderRequest{
		Order: SignedOrder{
			Salt:          salt.String(),
			Maker:         b.maker.Hex(),
			Signer:        b.signer.Address().Hex(),
			Taker:         common.Address{}.Hex(),
			TokenID:       params.TokenID,
			MakerAmount:   makerAmount.String(),
			TakerAmount:   takerAmount.String(),
			Expiration:    strconv.FormatInt(expiration, 10),
			Nonce:         b.nonce.String(),
			FeeRateBps:    strconv.Itoa(defaultFeeRateBps),
			Side:          string(params.Side),
			SignatureType: int(b.sigType),
			Signature:     signature,
		},
		OrderType: string(params.OrderType),
	}, nil
}

// BuildFOKBuy builds a fill-or-kill buy.
func (b *OrderBuilder) BuildFOKBuy(tokenID string, price, shares float64) (*OrderRequest, error) {
	return b.Build(BuildParams{TokenID: tokenID, Side: OrderSideBuy, Price: price, Shares: shares, OrderType: OrderTypeFOK})
}

// BuildFOKSell builds a fill-or-kill sell.
func (b *OrderBuilder) BuildFOKSell(tokenID string, price, shares float64) (*OrderRequest, error) {
	return b.Build(BuildParams{TokenID: tokenID, Side: OrderSideSell, Price: price, Shares: shares, OrderType: OrderTypeFOK})
}

// BuildGTCSell builds a resting sell order.
func (b *OrderBuilder) BuildGTCSell(tokenID string, price, shares float64) (*OrderRequest, error) {
	return b.Build(BuildParams{TokenID: tokenID, Side: OrderSideSell, Price: price, Shares: shares, OrderType: OrderTypeGTC})
}

// RoundPrice rounds a price to the instrument's price increment.
func RoundPrice(price float64) float64 {
	return math.Round(price/priceIncrement) * priceIncrement
}

// SharesFor converts a USD notional into shares at the given price,
// rounded down to two decimals so the order never exceeds the notional.
func SharesFor(notional, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return math.Floor(notional/price*100) / 100
}

// generateSalt produces a random salt for order uniqueness.
func generateSalt() (*big.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(buf), nil
}

// toUSDCWei converts a float amount to 6-decimal fixed point.
func toUSDCWei(amount float64) *big.Int {
	result := new(big.Float).Mul(new(big.Float).SetFloat64(amount), big.NewFloat(usdcDecimals))
	wei, _ := result.Int(nil)
	return wei
}

func sideToUint8(side OrderSide) uint8 {
	if side == OrderSideBuy {
		return wallet.SideBuy
	}
	return wallet.SideSell
}

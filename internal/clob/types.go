package clob

// PriceLevel is a single price level in the order book.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBook is the current state of bids and asks for a token.
type OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
	Hash string       `json:"hash"`
}

// OrderSide is the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeFOK OrderType = "FOK" // fill or kill
	OrderTypeGTC OrderType = "GTC" // good till cancelled
)

// SignedOrder is the wire form of an EIP-712 signed order.
type SignedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// OrderRequest is the payload for order submission.
type OrderRequest struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

// OrderResponse is returned by order submission.
type OrderResponse struct {
	Success  bool   `json:"success"`
	Status   string `json:"status"`
	OrderID  string `json:"orderID"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

// Filled reports whether the order executed. FOK orders that could not
// be fully matched come back with success=false or a non-matched status.
func (r *OrderResponse) Filled() bool {
	if r == nil || !r.Success {
		return false
	}
	return r.Status == "" || r.Status == "matched" || r.Status == "live"
}

// APIError is an error response from the CLOB API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return e.Message
}

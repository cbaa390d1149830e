package redeem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pablotenorio6/polymarket-bot/internal/chain"
	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

const (
	dataAPIURL = "https://data-api.polymarket.com"

	redeemGasLimit = 300000
	redeemTimeout  = 90 * time.Second
)

var (
	usdcAddress = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	ctfContract = common.HexToAddress("0x4D97DCd97eC945f40cF65F87097ACe5EA0476045")

	redeemABI = `[{"inputs":[{"name":"collateralToken","type":"address"},{"name":"parentCollectionId","type":"bytes32"},{"name":"conditionId","type":"bytes32"},{"name":"indexSets","type":"uint256[]"}],"name":"redeemPositions","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
)

// dataPosition is the wire shape of a position from the data API.
type dataPosition struct {
	ConditionID string  `json:"conditionId"`
	Redeemable  bool    `json:"redeemable"`
	Size        float64 `json:"size"`
	Outcome     string  `json:"outcome"`
	Title       string  `json:"title"`
}

// Manager converts resolved winning positions back into USDC. The
// trading loop only infers resolution and drops positions from its
// book; the actual on-chain redemption happens here, off the hot
// path.
type Manager struct {
	httpClient *http.Client
	dataURL    string
	rpcURL     string
	chainID    *big.Int
	wallet     *wallet.Wallet
	owner      common.Address
}

// NewManager creates a redemption manager. owner is the address that
// holds the outcome tokens: the funder wallet in proxy setups, the
// signing wallet otherwise.
func NewManager(w *wallet.Wallet, funderAddress, rpcURL string, chainID int64) *Manager {
	owner := w.Address()
	if funderAddress != "" {
		owner = common.HexToAddress(funderAddress)
	}
	return &Manager{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dataURL:    dataAPIURL,
		rpcURL:     rpcURL,
		chainID:    big.NewInt(chainID),
		wallet:     w,
		owner:      owner,
	}
}

// WithDataURL sets a custom data API base URL (useful for testing).
func (m *Manager) WithDataURL(url string) *Manager {
	m.dataURL = url
	return m
}

// CheckAndRedeem queries for redeemable positions and submits one
// redemption transaction per resolved condition. Intended to run in
// its own goroutine on a long interval; every failure is logged and
// swallowed, the next interval retries.
func (m *Manager) CheckAndRedeem(ctx context.Context) {
	positions, err := m.redeemable(ctx)
	if err != nil {
		log.Printf("[redeem] query positions: %v", err)
		return
	}
	if len(positions) == 0 {
		return
	}

	conditions := make(map[string]dataPosition)
	for _, p := range positions {
		conditions[p.ConditionID] = p
	}
	log.Printf("[redeem] %d redeemable condition(s)", len(conditions))

	client, err := ethclient.Dial(m.rpcURL)
	if err != nil {
		log.Printf("[redeem] connect RPC: %v", err)
		return
	}
	defer client.Close()

	for conditionID, pos := range conditions {
		if err := m.redeemCondition(ctx, client, conditionID); err != nil {
			log.Printf("[redeem] %s (%s): %v", pos.Title, conditionID, err)
			continue
		}
		log.Printf("[redeem] redeemed %s %s (%.2f shares)", pos.Outcome, pos.Title, pos.Size)
	}
}

// redeemable fetches the owner's redeemable positions from the data
// API.
func (m *Manager) redeemable(ctx context.Context) ([]dataPosition, error) {
	endpoint := fmt.Sprintf("%s/positions?user=%s&redeemable=true",
		m.dataURL, url.QueryEscape(strings.ToLower(m.owner.Hex())))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("positions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var all []dataPosition
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	out := all[:0]
	for _, p := range all {
		if p.Redeemable && p.ConditionID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// redeemCondition submits redeemPositions for one condition and waits
// for the receipt.
func (m *Manager) redeemCondition(ctx context.Context, client *ethclient.Client, conditionID string) error {
	callData, err := buildRedeemCallData(conditionID)
	if err != nil {
		return err
	}

	txCtx, cancel := context.WithTimeout(ctx, redeemTimeout)
	defer cancel()

	tx, err := chain.SendContractCall(txCtx, client, m.wallet, m.chainID, ctfContract, callData, redeemGasLimit)
	if err != nil {
		return err
	}

	receipt, err := chain.WaitForReceipt(txCtx, client, tx.Hash())
	if err != nil {
		return fmt.Errorf("tx %s pending: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}
	return nil
}

// buildRedeemCallData packs redeemPositions(USDC, 0x0, conditionId,
// [1, 2]). Both index sets are claimed; the losing side redeems to
// nothing and costs no extra gas worth caring about.
func buildRedeemCallData(conditionID string) ([]byte, error) {
	parsedABI, err := abi.JSON(strings.NewReader(redeemABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	var condition common.Hash
	if !strings.HasPrefix(conditionID, "0x") || len(conditionID) != 66 {
		return nil, fmt.Errorf("malformed condition id %q", conditionID)
	}
	condition = common.HexToHash(conditionID)

	data, err := parsedABI.Pack("redeemPositions",
		usdcAddress,
		common.Hash{},
		condition,
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call data: %w", err)
	}
	return data, nil
}

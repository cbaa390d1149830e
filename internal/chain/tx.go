package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pablotenorio6/polymarket-bot/internal/wallet"
)

// SignLegacyTx signs a legacy transaction with the wallet key under
// EIP-155 replay protection.
func SignLegacyTx(tx *types.Transaction, w *wallet.Wallet, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(chainID)
	txHash := signer.Hash(tx)

	signature, err := w.Sign(txHash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	if signature[64] < 27 {
		signature[64] += 27
	}

	signedTx, err := tx.WithSignature(signer, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}

	return signedTx, nil
}

// SendContractCall builds, signs and submits one contract call and
// returns the submitted transaction.
func SendContractCall(ctx context.Context, client *ethclient.Client, w *wallet.Wallet, chainID *big.Int, to common.Address, callData []byte, gasLimit uint64) (*types.Transaction, error) {
	nonce, err := client.PendingNonceAt(ctx, w.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, callData)

	signedTx, err := SignLegacyTx(tx, w, chainID)
	if err != nil {
		return nil, err
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx, nil
}

// WaitForReceipt polls until the transaction is mined or the context
// ends.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := client.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue
			}
			return receipt, nil
		}
	}
}

// Package mirror is a read-only client for the Hedera mirror node REST API,
// the ledger index behind account, token, network and contract log lookups.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/parlakisik/agent-exchange/aex-x402-streams/internal/httpclient"
)

// DefaultBaseURL is the public testnet mirror node.
const DefaultBaseURL = "https://testnet.mirrornode.hedera.com/api/v1"

// maxLogPages bounds how many links.next hops ListContractLogs follows.
const maxLogPages = 20

var ErrNotFound = errors.New("mirror: not found")

// Order is the sort direction of a collection.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Page selects a slice of a collection. Zero values use the per-endpoint
// defaults of the mirror node console.
type Page struct {
	Limit     int
	Order     Order
	Timestamp string
}

func (p Page) with(limit int, order Order) Page {
	if p.Limit <= 0 {
		p.Limit = limit
	}
	if p.Order == "" {
		p.Order = order
	}
	return p
}

type Client struct {
	http *httpclient.Client
	base *url.URL
}

// New returns a client rooted at baseURL (normally ending in /api/v1).
func New(baseURL string, hc *httpclient.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse mirror url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("mirror url %q must be absolute", baseURL)
	}
	return &Client{http: hc, base: u}, nil
}

func (c *Client) request(ctx context.Context, path string) *httpclient.RequestBuilder {
	return httpclient.NewRequest(http.MethodGet, c.base.String()).Path(path).Context(ctx)
}

func (c *Client) page(ctx context.Context, path string, p Page) *httpclient.RequestBuilder {
	return c.request(ctx, path).
		QueryInt("limit", p.Limit).
		Query("order", string(p.Order)).
		Query("timestamp", p.Timestamp)
}

func (c *Client) fetch(b *httpclient.RequestBuilder, out any) error {
	err := b.ExecuteJSON(c.http, out)
	if httpclient.StatusCode(err) == http.StatusNotFound {
		return ErrNotFound
	}
	return err
}

// --- accounts ---

func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var out Account
	if err := c.fetch(c.request(ctx, "/accounts/"+url.PathEscape(id)), &out); err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return &out, nil
}

// NFTFilter narrows account and token NFT listings.
type NFTFilter struct {
	Page
	TokenID      string
	AccountID    string
	SerialNumber string
}

func (c *Client) ListAccountNFTs(ctx context.Context, id string, f NFTFilter) ([]NFT, error) {
	var out struct {
		NFTs []NFT `json:"nfts"`
	}
	b := c.page(ctx, "/accounts/"+url.PathEscape(id)+"/nfts", f.Page.with(25, Desc)).
		Query("token.id", f.TokenID).
		Query("serialnumber", f.SerialNumber)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list account nfts %s: %w", id, err)
	}
	return out.NFTs, nil
}

func (c *Client) ListStakingRewards(ctx context.Context, id string, p Page) ([]StakingReward, error) {
	var out struct {
		Rewards []StakingReward `json:"rewards"`
	}
	if err := c.fetch(c.page(ctx, "/accounts/"+url.PathEscape(id)+"/rewards", p.with(25, Desc)), &out); err != nil {
		return nil, fmt.Errorf("list staking rewards %s: %w", id, err)
	}
	return out.Rewards, nil
}

func (c *Client) ListAccountTokens(ctx context.Context, id, tokenID string, p Page) ([]TokenRelationship, error) {
	var out struct {
		Tokens []TokenRelationship `json:"tokens"`
	}
	b := c.page(ctx, "/accounts/"+url.PathEscape(id)+"/tokens", p.with(50, Asc)).Query("token.id", tokenID)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list account tokens %s: %w", id, err)
	}
	return out.Tokens, nil
}

// --- transactions ---

// TransactionFilter narrows /transactions.
type TransactionFilter struct {
	Page
	AccountID string
	Type      string
	Result    string
}

func (c *Client) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	b := c.page(ctx, "/transactions", f.Page.with(25, Desc)).
		Query("account.id", f.AccountID).
		Query("transactiontype", f.Type).
		Query("result", f.Result)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out.Transactions, nil
}

// GetTransaction returns every transaction sharing id (the parent and any
// child or scheduled records).
func (c *Client) GetTransaction(ctx context.Context, id string) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := c.fetch(c.request(ctx, "/transactions/"+url.PathEscape(id)), &out); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return out.Transactions, nil
}

// --- blocks ---

func (c *Client) ListBlocks(ctx context.Context, p Page) ([]Block, error) {
	var out struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.fetch(c.page(ctx, "/blocks", p.with(25, Desc)), &out); err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return out.Blocks, nil
}

func (c *Client) GetBlock(ctx context.Context, hashOrNumber string) (*Block, error) {
	var out Block
	if err := c.fetch(c.request(ctx, "/blocks/"+url.PathEscape(hashOrNumber)), &out); err != nil {
		return nil, fmt.Errorf("get block %s: %w", hashOrNumber, err)
	}
	return &out, nil
}

// --- tokens ---

func (c *Client) GetToken(ctx context.Context, id string) (*Token, error) {
	var out Token
	if err := c.fetch(c.request(ctx, "/tokens/"+url.PathEscape(id)), &out); err != nil {
		return nil, fmt.Errorf("get token %s: %w", id, err)
	}
	return &out, nil
}

func (c *Client) ListTokenBalances(ctx context.Context, id, accountID string, p Page) ([]TokenHolder, error) {
	var out struct {
		Balances []TokenHolder `json:"balances"`
	}
	b := c.page(ctx, "/tokens/"+url.PathEscape(id)+"/balances", p.with(25, Desc)).Query("account.id", accountID)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list token balances %s: %w", id, err)
	}
	return out.Balances, nil
}

func (c *Client) ListTokenNFTs(ctx context.Context, id string, f NFTFilter) ([]NFT, error) {
	var out struct {
		NFTs []NFT `json:"nfts"`
	}
	b := c.page(ctx, "/tokens/"+url.PathEscape(id)+"/nfts", f.Page.with(25, Desc)).
		Query("account.id", f.AccountID).
		Query("serialnumber", f.SerialNumber)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list token nfts %s: %w", id, err)
	}
	return out.NFTs, nil
}

func (c *Client) GetNFT(ctx context.Context, tokenID string, serial int64) (*NFT, error) {
	var out NFT
	path := "/tokens/" + url.PathEscape(tokenID) + "/nfts/" + strconv.FormatInt(serial, 10)
	if err := c.fetch(c.request(ctx, path), &out); err != nil {
		return nil, fmt.Errorf("get nft %s/%d: %w", tokenID, serial, err)
	}
	return &out, nil
}

func (c *Client) ListNFTTransactions(ctx context.Context, tokenID string, serial int64, p Page) ([]NFTTransaction, error) {
	var out struct {
		Transactions []NFTTransaction `json:"transactions"`
	}
	path := "/tokens/" + url.PathEscape(tokenID) + "/nfts/" + strconv.FormatInt(serial, 10) + "/transactions"
	if err := c.fetch(c.page(ctx, path, p.with(25, Desc)), &out); err != nil {
		return nil, fmt.Errorf("list nft transactions %s/%d: %w", tokenID, serial, err)
	}
	return out.Transactions, nil
}

// --- network ---

func (c *Client) GetExchangeRate(ctx context.Context, timestamp string) (*ExchangeRate, error) {
	var out ExchangeRate
	if err := c.fetch(c.request(ctx, "/network/exchangerate").Query("timestamp", timestamp), &out); err != nil {
		return nil, fmt.Errorf("get exchange rate: %w", err)
	}
	return &out, nil
}

func (c *Client) GetNetworkFees(ctx context.Context, order Order, timestamp string) (*NetworkFees, error) {
	var out NetworkFees
	b := c.request(ctx, "/network/fees").Query("order", string(order)).Query("timestamp", timestamp)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("get network fees: %w", err)
	}
	return &out, nil
}

func (c *Client) ListNetworkNodes(ctx context.Context, fileID, nodeID string, p Page) ([]NetworkNode, error) {
	var out struct {
		Nodes []NetworkNode `json:"nodes"`
	}
	b := c.page(ctx, "/network/nodes", p.with(100, Asc)).
		Query("file.id", fileID).
		Query("node.id", nodeID)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list network nodes: %w", err)
	}
	return out.Nodes, nil
}

func (c *Client) GetNetworkStake(ctx context.Context) (*NetworkStake, error) {
	var out NetworkStake
	if err := c.fetch(c.request(ctx, "/network/stake"), &out); err != nil {
		return nil, fmt.Errorf("get network stake: %w", err)
	}
	return &out, nil
}

func (c *Client) GetNetworkSupply(ctx context.Context, timestamp string) (*NetworkSupply, error) {
	var out NetworkSupply
	if err := c.fetch(c.request(ctx, "/network/supply").Query("timestamp", timestamp), &out); err != nil {
		return nil, fmt.Errorf("get network supply: %w", err)
	}
	return &out, nil
}

// --- contracts ---

func (c *Client) ListContracts(ctx context.Context, contractID string, p Page) ([]Contract, error) {
	var out struct {
		Contracts []Contract `json:"contracts"`
	}
	b := c.page(ctx, "/contracts", p.with(25, Desc)).Query("contract.id", contractID)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return out.Contracts, nil
}

func (c *Client) GetContract(ctx context.Context, idOrAddress string) (*Contract, error) {
	var out Contract
	if err := c.fetch(c.request(ctx, "/contracts/"+url.PathEscape(idOrAddress)), &out); err != nil {
		return nil, fmt.Errorf("get contract %s: %w", idOrAddress, err)
	}
	return &out, nil
}

// ResultFilter narrows /contracts/{id}/results.
type ResultFilter struct {
	Page
	BlockHash   string
	BlockNumber string
	From        string
}

func (c *Client) ListContractResults(ctx context.Context, idOrAddress string, f ResultFilter) ([]ContractResult, error) {
	var out struct {
		Results []ContractResult `json:"results"`
	}
	b := c.page(ctx, "/contracts/"+url.PathEscape(idOrAddress)+"/results", f.Page.with(25, Desc)).
		Query("block.hash", f.BlockHash).
		Query("block.number", f.BlockNumber).
		Query("from", f.From)
	if err := c.fetch(b, &out); err != nil {
		return nil, fmt.Errorf("list contract results %s: %w", idOrAddress, err)
	}
	return out.Results, nil
}

// LogFilter selects contract logs by topic. Topics are 0x-prefixed hex.
type LogFilter struct {
	Page
	Topic0 string
	Topic1 string
	Topic2 string
	Topic3 string
}

// ListContractLogs returns every log matching f, following links.next
// until the collection is exhausted.
func (c *Client) ListContractLogs(ctx context.Context, idOrAddress string, f LogFilter) ([]ContractLog, error) {
	b := c.page(ctx, "/contracts/"+url.PathEscape(idOrAddress)+"/results/logs", f.Page.with(100, Asc)).
		Query("topic0", f.Topic0).
		Query("topic1", f.Topic1).
		Query("topic2", f.Topic2).
		Query("topic3", f.Topic3)

	var logs []ContractLog
	for pages := 0; ; pages++ {
		if pages == maxLogPages {
			slog.WarnContext(ctx, "contract_logs_truncated", "contract", idOrAddress, "pages", pages, "logs", len(logs))
			return logs, nil
		}
		var out struct {
			Logs  []ContractLog `json:"logs"`
			Links Links         `json:"links"`
		}
		if err := c.fetch(b, &out); err != nil {
			return nil, fmt.Errorf("list contract logs %s: %w", idOrAddress, err)
		}
		logs = append(logs, out.Logs...)
		if out.Links.Next == nil || *out.Links.Next == "" {
			return logs, nil
		}
		next, err := c.resolve(*out.Links.Next)
		if err != nil {
			return nil, err
		}
		b = httpclient.NewRequest(http.MethodGet, next).Context(ctx)
	}
}

// resolve turns a links.next value, which is a path starting at /api/v1,
// into an absolute URL on the configured host.
func (c *Client) resolve(next string) (string, error) {
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next link %q: %w", next, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

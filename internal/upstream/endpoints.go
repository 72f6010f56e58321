package upstream

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// StakeBalance is one row of /stake_balance/latest or /stake_balance/history.
type StakeBalance struct {
	Coldkey      string    `json:"coldkey"`
	Hotkey       string    `json:"hotkey"`
	NetUID       int       `json:"netuid"`
	Balance      string    `json:"balance"`
	BalanceAsTAO string    `json:"balance_as_tao"`
	Timestamp    Timestamp `json:"timestamp"`
}

// DelegationEvent is one row of /delegation.
type DelegationEvent struct {
	EventID     string    `json:"event_id"`
	Coldkey     string    `json:"coldkey"`
	Hotkey      string    `json:"hotkey"`
	NetUID      int       `json:"netuid"`
	Action      string    `json:"action"`
	Amount      string    `json:"amount"`
	AlphaAmount string    `json:"alpha_amount"`
	Timestamp   Timestamp `json:"timestamp"`
}

// AccountingRow is one row of /accounting/tax.
type AccountingRow struct {
	Coldkey     string    `json:"coldkey"`
	Token       string    `json:"token"`
	NetUID      int       `json:"netuid"`
	DailyIncome string    `json:"daily_income"`
	Date        Timestamp `json:"date"`
}

// PoolState is one row of /pool/latest or /pool/history.
type PoolState struct {
	NetUID           int       `json:"netuid"`
	TAOReserve       string    `json:"tao_reserve"`
	AlphaReserve     string    `json:"alpha_reserve"`
	EmissionShare    string    `json:"emission_share"`
	Timestamp        Timestamp `json:"timestamp"`
}

// SubnetMetadata is one row of /subnet/latest.
type SubnetMetadata struct {
	NetUID       int       `json:"netuid"`
	OwnerTake    string    `json:"owner_take"`
	FeeRate      string    `json:"fee_rate"`
	HolderCount  int       `json:"holder_count"`
	RegisteredAt Timestamp `json:"registered_at"`
}

// SlippageQuote is the response of /slippage.
type SlippageQuote struct {
	NetUID          int    `json:"netuid"`
	Action          string `json:"action"`
	SizeTAO         string `json:"size_tao"`
	SlippagePct     string `json:"slippage_pct"`
	ExpectedOutput  string `json:"expected_output"`
	TAOReserve      string `json:"tao_reserve"`
	AlphaReserve    string `json:"alpha_reserve"`
}

// ValidatorPerformance is one row of /validator/latest.
type ValidatorPerformance struct {
	Hotkey   string `json:"hotkey"`
	NetUID   int    `json:"netuid"`
	APY      string `json:"apy"`
	TakeRate string `json:"take_rate"`
	Stake    string `json:"stake"`
}

// Extrinsic is one row of /extrinsics.
type Extrinsic struct {
	ExtrinsicID string    `json:"extrinsic_id"`
	BlockNumber int64     `json:"block_number"`
	Address     string    `json:"address"`
	Hotkey      string    `json:"hotkey"`
	NetUID      int       `json:"netuid"`
	Call        string    `json:"call"`
	AmountRao   int64     `json:"amount_rao"`
	AlphaAmount *string   `json:"alpha_amount,omitempty"`
	LimitPrice  *string   `json:"limit_price,omitempty"`
	Fee         string    `json:"fee"`
	Success     bool      `json:"success"`
	Timestamp   Timestamp `json:"timestamp"`
}

type stakeBalanceLatestResponse struct {
	Result []StakeBalance `json:"result"`
}

// StakeBalanceLatest calls /stake_balance/latest for a coldkey.
func (c *Client) StakeBalanceLatest(ctx context.Context, coldkey string) ([]StakeBalance, error) {
	params := url.Values{"coldkey": {coldkey}}
	var resp stakeBalanceLatestResponse
	cacheKey := "stake_balance/latest:" + coldkey
	err := c.Request(ctx, "GET", "/stake_balance/latest", params, cacheKey, 30*time.Second, &resp)
	return resp.Result, err
}

type stakeBalanceHistoryResponse struct {
	Result  []StakeBalance `json:"result"`
	HasMore bool           `json:"has_more"`
}

// StakeBalanceHistory paginates /stake_balance/history for a (coldkey, hotkey, netuid).
func (c *Client) StakeBalanceHistory(ctx context.Context, coldkey, hotkey string, netuid int, maxPages int) ([]StakeBalance, error) {
	params := url.Values{
		"coldkey": {coldkey},
		"hotkey":  {hotkey},
		"netuid":  {strconv.Itoa(netuid)},
	}
	var out []StakeBalance
	err := c.Paginate(ctx, "/stake_balance/history", params, maxPages, 200, func(body []byte) (bool, error) {
		var page stakeBalanceHistoryResponse
		if err := unmarshalPage(body, &page); err != nil {
			return false, &DecodeError{Endpoint: "/stake_balance/history", Err: err}
		}
		out = append(out, page.Result...)
		return page.HasMore, nil
	})
	return out, err
}

type delegationResponse struct {
	Result  []DelegationEvent `json:"result"`
	HasMore bool              `json:"has_more"`
}

// Delegations paginates /delegation for a coldkey.
func (c *Client) Delegations(ctx context.Context, coldkey string, maxPages int) ([]DelegationEvent, error) {
	params := url.Values{"coldkey": {coldkey}}
	var out []DelegationEvent
	err := c.Paginate(ctx, "/delegation", params, maxPages, 200, func(body []byte) (bool, error) {
		var page delegationResponse
		if err := unmarshalPage(body, &page); err != nil {
			return false, &DecodeError{Endpoint: "/delegation", Err: err}
		}
		out = append(out, page.Result...)
		return page.HasMore, nil
	})
	return out, err
}

type accountingResponse struct {
	Result []AccountingRow `json:"result"`
}

// AccountingTax calls /accounting/tax for the given window; the caller is
// responsible for chunking windows wider than the upstream's 12-month
// limit (see internal/yield).
func (c *Client) AccountingTax(ctx context.Context, coldkey, token string, start, end time.Time) ([]AccountingRow, error) {
	params := url.Values{
		"coldkey":    {coldkey},
		"token":      {token},
		"date_start": {start.UTC().Format("2006-01-02")},
		"date_end":   {end.UTC().Format("2006-01-02")},
	}
	var resp accountingResponse
	err := c.Request(ctx, "GET", "/accounting/tax", params, "", 0, &resp)
	return resp.Result, err
}

type poolLatestResponse struct {
	Result []PoolState `json:"result"`
}

// PoolLatest calls /pool/latest for every subnet's current pool state.
func (c *Client) PoolLatest(ctx context.Context) ([]PoolState, error) {
	var resp poolLatestResponse
	err := c.Request(ctx, "GET", "/pool/latest", url.Values{}, "pool/latest", 60*time.Second, &resp)
	return resp.Result, err
}

type poolHistoryResponse struct {
	Result  []PoolState `json:"result"`
	HasMore bool        `json:"has_more"`
}

// PoolHistory paginates /pool/history for one subnet.
func (c *Client) PoolHistory(ctx context.Context, netuid int, maxPages int) ([]PoolState, error) {
	params := url.Values{"netuid": {strconv.Itoa(netuid)}}
	var out []PoolState
	err := c.Paginate(ctx, "/pool/history", params, maxPages, 200, func(body []byte) (bool, error) {
		var page poolHistoryResponse
		if err := unmarshalPage(body, &page); err != nil {
			return false, &DecodeError{Endpoint: "/pool/history", Err: err}
		}
		out = append(out, page.Result...)
		return page.HasMore, nil
	})
	return out, err
}

type subnetLatestResponse struct {
	Result []SubnetMetadata `json:"result"`
}

// SubnetLatest calls /subnet/latest for every subnet's metadata.
func (c *Client) SubnetLatest(ctx context.Context) ([]SubnetMetadata, error) {
	var resp subnetLatestResponse
	err := c.Request(ctx, "GET", "/subnet/latest", url.Values{}, "subnet/latest", 5*time.Minute, &resp)
	return resp.Result, err
}

// Slippage calls /slippage for one (netuid, amount, action).
func (c *Client) Slippage(ctx context.Context, netuid int, amountTAO float64, action string) (*SlippageQuote, error) {
	params := url.Values{
		"netuid": {strconv.Itoa(netuid)},
		"amount": {strconv.FormatFloat(amountTAO, 'f', 9, 64)},
		"action": {action},
	}
	var resp SlippageQuote
	err := c.Request(ctx, "GET", "/slippage", params, "", 0, &resp)
	return &resp, err
}

type validatorLatestResponse struct {
	Result []ValidatorPerformance `json:"result"`
}

// ValidatorLatest calls /validator/latest for one subnet.
func (c *Client) ValidatorLatest(ctx context.Context, netuid int) ([]ValidatorPerformance, error) {
	params := url.Values{"netuid": {strconv.Itoa(netuid)}}
	var resp validatorLatestResponse
	cacheKey := "validator/latest:" + strconv.Itoa(netuid)
	err := c.Request(ctx, "GET", "/validator/latest", params, cacheKey, 5*time.Minute, &resp)
	return resp.Result, err
}

type extrinsicsResponse struct {
	Result  []Extrinsic `json:"result"`
	HasMore bool        `json:"has_more"`
}

// Extrinsics paginates /extrinsics for a wallet address, only yielding
// blocks above sinceBlock (the highest stored block number for that
// wallet, per §4.4 step 6).
func (c *Client) Extrinsics(ctx context.Context, address string, sinceBlock int64, maxPages int) ([]Extrinsic, error) {
	params := url.Values{"address": {address}}
	var out []Extrinsic
	err := c.Paginate(ctx, "/extrinsics", params, maxPages, 200, func(body []byte) (bool, error) {
		var page extrinsicsResponse
		if err := unmarshalPage(body, &page); err != nil {
			return false, &DecodeError{Endpoint: "/extrinsics", Err: err}
		}
		for _, e := range page.Result {
			if e.BlockNumber > sinceBlock {
				out = append(out, e)
			}
		}
		return page.HasMore, nil
	})
	return out, err
}

func unmarshalPage(body []byte, out interface{}) error {
	return json.Unmarshal(body, out)
}

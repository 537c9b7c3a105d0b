// Package console holds the presentation state a dashboard renders: the
// agent roster, the console log and the notification feed.
package console

import (
	"fmt"
	"math/big"
	"slices"
	"sync"
)

type Role string

const (
	RoleCommander Role = "Commander"
	RoleNavigator Role = "Navigator"
	RoleArchivist Role = "Archivist"
	RoleMerchant  Role = "Merchant"
	RoleSentinel  Role = "Sentinel"
	RoleOracle    Role = "Oracle"
	RoleGlitch    Role = "Glitch"
)

type Agent struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Role          Role     `json:"role"`
	Description   string   `json:"description"`
	Capabilities  []string `json:"capabilities"`
	TokenID       int64    `json:"token_id"`
	TrustScore    int      `json:"trust_score"`
	WalletAddress string   `json:"wallet_address"`
	Active        bool     `json:"active"`
}

// Agents is the fixed roster. Token ids are the agents' on-chain identities.
var Agents = []Agent{
	{ID: "a0", Name: "Commander Nexus", Role: RoleCommander, TokenID: 800400, TrustScore: 100, WalletAddress: "0xFF...AAAA",
		Description:  "Supreme orchestrator. Coordinates all agents and strategic decisions.",
		Capabilities: []string{"Strategic Planning", "Agent Coordination", "Risk Management", "Decision Making"}},
	{ID: "a1", Name: "Navigator Prime", Role: RoleNavigator, TokenID: 800401, TrustScore: 98, WalletAddress: "0x71...A9f2",
		Description:  "Routing, chains, discovery. Optimizes paths across the multi-chain verse.",
		Capabilities: []string{"Pathfinding", "Bridge Aggregation", "Latency Optimization"}},
	{ID: "a2", Name: "Archivist Aurora", Role: RoleArchivist, TokenID: 800402, TrustScore: 99, WalletAddress: "0x3B...22c1",
		Description:  "Dataset curation and ledger indexing. The memory of the grid.",
		Capabilities: []string{"Data Indexing", "Storage Proofs", "Historical Query"}},
	{ID: "a3", Name: "Merchant Volt", Role: RoleMerchant, TokenID: 800403, TrustScore: 85, WalletAddress: "0x99...dE4a",
		Description:  "Flash arbitrage and liquidity provision. High-frequency negotiator.",
		Capabilities: []string{"Arbitrage", "Liquidity Sniping", "Market Making"}},
	{ID: "a4", Name: "Sentinel Atlas", Role: RoleSentinel, TokenID: 800404, TrustScore: 100, WalletAddress: "0x11...Af33",
		Description:  "Smart contract auditing and risk assessment. The shield.",
		Capabilities: []string{"Security Audit", "Risk Analysis", "Invariant Checking"}},
	{ID: "a5", Name: "Oracle Celestia", Role: RoleOracle, TokenID: 800405, TrustScore: 96, WalletAddress: "0xCC...881b",
		Description:  "Forecasting and outcome verification. Sees the future blocks.",
		Capabilities: []string{"Price Feeds", "Event Resolution", "Randomness Gen"}},
	{ID: "a6", Name: "Trickster Glitch", Role: RoleGlitch, TokenID: 800406, TrustScore: 42, WalletAddress: "0x00...0000",
		Description:  "MEV extraction and chaotic stress testing. The anomaly.",
		Capabilities: []string{"MEV Simulation", "Chaos Engineering", "Stress Testing"}},
}

// Roster tracks which agents are active on the grid.
type Roster struct {
	mu     sync.RWMutex
	active map[string]bool
	log    *Log
}

func NewRoster(log *Log) *Roster {
	return &Roster{active: make(map[string]bool), log: log}
}

// List returns the roster with current activation flags.
func (r *Roster) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, len(Agents))
	for i, a := range Agents {
		a.Capabilities = slices.Clone(a.Capabilities)
		a.Active = r.active[a.ID]
		out[i] = a
	}
	return out
}

// Toggle flips an agent's activation and logs it.
func (r *Roster) Toggle(id string) (Agent, error) {
	a, ok := Find(id)
	if !ok {
		return Agent{}, fmt.Errorf("unknown agent %q", id)
	}
	r.mu.Lock()
	r.active[id] = !r.active[id]
	a.Active = r.active[id]
	r.mu.Unlock()

	state := "DEACTIVATED"
	if a.Active {
		state = "ACTIVATED"
	}
	if r.log != nil {
		r.log.Add(TypeSystem, fmt.Sprintf("Agent %s %s on grid.", a.Name, state))
	}
	return a, nil
}

// Find looks an agent up by roster id.
func Find(id string) (Agent, bool) {
	for _, a := range Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// ByTokenID looks an agent up by its on-chain id.
func ByTokenID(id *big.Int) (Agent, bool) {
	if id == nil || !id.IsInt64() {
		return Agent{}, false
	}
	for _, a := range Agents {
		if a.TokenID == id.Int64() {
			return a, true
		}
	}
	return Agent{}, false
}

// TokenIDs returns the on-chain ids of every roster agent.
func TokenIDs() []*big.Int {
	out := make([]*big.Int, len(Agents))
	for i, a := range Agents {
		out[i] = big.NewInt(a.TokenID)
	}
	return out
}

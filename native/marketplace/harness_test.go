package marketplace

import (
	"math/big"
	"testing"

	"agorachain/core/events"
	"agorachain/core/state"
	"agorachain/native/escrow"
	"agorachain/native/reputation"
	"agorachain/storage"
)

// captureEmitter records every emitted event for assertions.
type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *captureEmitter) lastType() string {
	if len(c.events) == 0 {
		return ""
	}
	return c.events[len(c.events)-1].EventType()
}

type testEnv struct {
	t       *testing.T
	manager *state.Manager
	vault   *escrow.Vault
	ledger  *reputation.Ledger
	catalog *Catalog
	engine  *Engine
	emitter *captureEmitter
	tick    uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t}
	env.manager = state.NewManager(storage.NewMemDB())
	env.vault = escrow.NewVault(env.manager)
	env.ledger = reputation.NewLedger(env.manager)
	env.emitter = &captureEmitter{}
	tick := func() uint64 { return env.tick }

	env.catalog = NewCatalog(env.manager, env.ledger)
	env.catalog.SetEmitter(env.emitter)
	env.catalog.SetTickFunc(tick)

	env.engine = NewEngine(env.manager, env.vault, env.ledger)
	env.engine.SetEmitter(env.emitter)
	env.engine.SetTickFunc(tick)
	return env
}

func (env *testEnv) setParams(mutate func(*Params)) {
	env.t.Helper()
	params := DefaultParams()
	if mutate != nil {
		mutate(&params)
	}
	if err := env.catalog.SetParams(params); err != nil {
		env.t.Fatalf("set catalog params: %v", err)
	}
	if err := env.engine.SetParams(params); err != nil {
		env.t.Fatalf("set engine params: %v", err)
	}
}

func testAddr(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

func (env *testEnv) fund(addr [20]byte, amount int64) {
	env.t.Helper()
	if err := env.manager.Mint(addr[:], big.NewInt(amount)); err != nil {
		env.t.Fatalf("mint %d to %x: %v", amount, addr, err)
	}
}

func (env *testEnv) score(addr [20]byte, score uint64) {
	env.t.Helper()
	if err := env.ledger.SetScore(addr, score); err != nil {
		env.t.Fatalf("set score: %v", err)
	}
}

func (env *testEnv) balance(addr [20]byte) *big.Int {
	env.t.Helper()
	account, err := env.manager.GetAccount(addr[:])
	if err != nil {
		env.t.Fatalf("get account %x: %v", addr, err)
	}
	return account.Balance
}

func (env *testEnv) requireBalance(addr [20]byte, want int64) {
	env.t.Helper()
	if got := env.balance(addr); got.Cmp(big.NewInt(want)) != 0 {
		env.t.Fatalf("balance of %x = %s, want %d", addr, got, want)
	}
}

func defaultTerms() ListingTerms {
	return ListingTerms{
		Name:        "code review",
		Description: "thorough review of Go services",
		Tags:        []string{"review", "golang"},
		MinPrice:    big.NewInt(100),
		MaxPrice:    big.NewInt(500),
	}
}

func (env *testEnv) createListing(provider [20]byte, mutate func(*ListingTerms)) [32]byte {
	env.t.Helper()
	env.score(provider, DefaultParams().CatalogMinReputation)
	terms := defaultTerms()
	if mutate != nil {
		mutate(&terms)
	}
	id, err := env.catalog.CreateListing(provider, terms)
	if err != nil {
		env.t.Fatalf("create listing: %v", err)
	}
	return id
}

func (env *testEnv) invoke(invoker [20]byte, listingID [32]byte, price int64, deadlineDelta uint64, milestones ...MilestoneSpec) *ServiceInvocation {
	env.t.Helper()
	inv, err := env.engine.Invoke(invoker, listingID, []byte("build it"), milestones, big.NewInt(price), deadlineDelta)
	if err != nil {
		env.t.Fatalf("invoke: %v", err)
	}
	return inv
}

func (env *testEnv) mustStatus(id [32]byte, want InvocationStatus) *ServiceInvocation {
	env.t.Helper()
	inv, err := env.engine.GetInvocation(id)
	if err != nil {
		env.t.Fatalf("get invocation: %v", err)
	}
	if inv.Status != want {
		env.t.Fatalf("invocation status = %s, want %s", inv.Status, want)
	}
	return inv
}

func (env *testEnv) escrowBalance(ref [32]byte) *big.Int {
	env.t.Helper()
	balance, err := env.vault.BalanceOf(ref)
	if err != nil {
		env.t.Fatalf("escrow balance: %v", err)
	}
	return balance
}

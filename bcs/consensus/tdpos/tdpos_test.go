package tdpos

import (
	"testing"

	"github.com/xuperchain/xupergraph/bcs/evaluator"
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	kevaluator "github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/mock"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

func newChain(t *testing.T, witnesses int) *mock.Chain {
	reg := kevaluator.NewRegistry()
	evaluator.RegisterAll(reg)
	chain, err := mock.NewChain(reg, mock.NewGenesis(witnesses))
	if err != nil {
		t.Fatal(err)
	}
	return chain
}

func newTdpos(t *testing.T) *Tdpos {
	ctx, err := NewTdposCtx("xgraph")
	if err != nil {
		t.Fatal(err)
	}
	tp, err := NewTdpos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return tp
}

func witnessID(i uint64) protos.ObjectID {
	return protos.NewObjectID(protos.ProtocolSpace, protos.ObjTypeWitness, i)
}

func committeeID(i uint64) protos.ObjectID {
	return protos.NewObjectID(protos.ProtocolSpace, protos.ObjTypeCommitteeMember, i)
}

func modify(t *testing.T, db *objdb.Database, obj objdb.Object, fn func()) {
	if err := db.Modify(obj, fn); err != nil {
		t.Fatal(err)
	}
}

func setVotes(t *testing.T, db *objdb.Database, id protos.ObjectID, votes protos.Share) {
	switch c := db.Find(id).(type) {
	case *objects.Witness:
		modify(t, db, c, func() { c.TotalVotes = votes })
	case *objects.CommitteeMember:
		modify(t, db, c, func() { c.TotalVotes = votes })
	default:
		t.Fatalf("no candidate %s", id)
	}
}

func TestVoteCounter(t *testing.T) {
	a := protos.NewObjectID(1, 2, 10)
	b := protos.NewObjectID(1, 2, 11)
	c := protos.NewObjectID(1, 2, 12)

	vc := newVoteCounter()
	vc.add(a, 1<<20)
	vc.add(b, 1<<19)
	vc.add(c, 1)
	vc.add(c, 0)
	var auth protos.Authority
	vc.finish(&auth)
	if auth.WeightThreshold != (32768+16384+1)/2+1 {
		t.Fatalf("threshold %d", auth.WeightThreshold)
	}
	want := map[protos.ObjectID]uint16{a: 32768, b: 16384, c: 1}
	for _, aa := range auth.AccountAuths {
		if want[aa.Account] != aa.Weight {
			t.Errorf("%s weight %d", aa.Account, aa.Weight)
		}
	}

	empty := protos.Authority{WeightThreshold: 7}
	newVoteCounter().finish(&empty)
	if empty.WeightThreshold != 7 {
		t.Error("an empty counter must leave the authority alone")
	}
}

func TestIrreversibleBlockNum(t *testing.T) {
	cases := []struct {
		confirmed []uint32
		want      uint32
	}{
		{[]uint32{1, 1, 1, 2, 2, 2, 2, 2, 2, 2}, 2},
		{[]uint32{2, 1, 1, 1, 2, 1, 1, 1, 1, 2}, 1},
		{[]uint32{3, 3, 3}, 3},
		{[]uint32{9}, 9},
		{nil, 0},
	}
	for _, c := range cases {
		if got := IrreversibleBlockNum(c.confirmed); got != c.want {
			t.Errorf("%v: got %d want %d", c.confirmed, got, c.want)
		}
	}
}

func TestShuffle(t *testing.T) {
	active := []protos.ObjectID{witnessID(1), witnessID(2), witnessID(3), witnessID(4), witnessID(5)}
	a := shuffle(active, 1600000300)
	b := shuffle(active, 1600000300)
	if len(a) != len(active) {
		t.Fatalf("shuffled %d of %d", len(a), len(active))
	}
	seen := make(map[protos.ObjectID]bool)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("shuffle is not deterministic")
		}
		seen[a[i]] = true
	}
	if len(seen) != len(active) {
		t.Fatalf("shuffle lost witnesses: %v", a)
	}
	if active[0] != witnessID(1) {
		t.Fatal("shuffle modified its input")
	}
}

func TestSlotArithmetic(t *testing.T) {
	chain := newChain(t, 3)
	db := chain.DB()
	s := NewSchedule(db)
	g := mock.GenesisTimestamp

	if s.SlotTime(0) != 0 || s.SlotTime(1) != g+3 || s.SlotTime(4) != g+12 {
		t.Fatalf("genesis slots %d %d", s.SlotTime(1), s.SlotTime(4))
	}
	if s.SlotAtTime(g+2) != 0 || s.SlotAtTime(g+3) != 1 || s.SlotAtTime(g+10) != 3 {
		t.Fatal("slot at time before block one")
	}

	dgp := objects.DynamicGlobalProperties(db)
	head := g + 301
	modify(t, db, dgp, func() {
		dgp.HeadBlockNumber = 5
		dgp.Time = head
	})
	if s.SlotTime(1) != g+303 {
		t.Fatalf("slot one after head %d", s.SlotTime(1))
	}
	if err := UpdateMaintenanceFlag(db, true); err != nil {
		t.Fatal(err)
	}
	if s.SlotTime(1) != g+300+4*3 {
		t.Fatalf("maintenance skip slots ignored: %d", s.SlotTime(1))
	}
	if err := UpdateMaintenanceFlag(db, false); err != nil {
		t.Fatal(err)
	}
	if s.SlotAtTime(g+309) != 3 {
		t.Fatalf("slot at time %d", s.SlotAtTime(g+309))
	}
}

func TestScheduledWitnessAndProducer(t *testing.T) {
	chain := newChain(t, 3)
	db := chain.DB()
	tp := newTdpos(t)
	s := NewSchedule(db)

	order := objects.GetWitnessSchedule(db).CurrentShuffledWitnesses
	for slot := uint32(1); slot <= 6; slot++ {
		w, err := s.ScheduledWitness(slot)
		if err != nil {
			t.Fatal(err)
		}
		if w != order[int(slot)%len(order)] {
			t.Errorf("slot %d scheduled %s", slot, w)
		}
	}

	when := s.SlotTime(2)
	owner, _ := s.ScheduledWitness(2)
	if err := tp.CheckProducer(db, owner, when); err != nil {
		t.Fatal(err)
	}
	other, _ := s.ScheduledWitness(3)
	if err := tp.CheckProducer(db, other, when); err == nil {
		t.Fatal("a block from the wrong witness passed")
	}
	if err := tp.CheckProducer(db, owner, mock.GenesisTimestamp); err != ErrTimeoutBlock {
		t.Fatalf("got %v", err)
	}

	// a new round reshuffles with the head time as seed
	dgp := objects.DynamicGlobalProperties(db)
	modify(t, db, dgp, func() {
		dgp.HeadBlockNumber = 3
		dgp.Time = mock.GenesisTimestamp + 9
	})
	if err := s.UpdateWitnessSchedule(); err != nil {
		t.Fatal(err)
	}
	want := shuffle(objects.GlobalProperties(db).ActiveWitnesses, mock.GenesisTimestamp+9)
	got := objects.GetWitnessSchedule(db).CurrentShuffledWitnesses
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("schedule %v want %v", got, want)
		}
	}
}

func TestSigningWitnessPayAndIrreversibility(t *testing.T) {
	chain := newChain(t, 3)
	db := chain.DB()
	tp := newTdpos(t)

	dgp := objects.DynamicGlobalProperties(db)
	modify(t, db, dgp, func() { dgp.WitnessBudget = 1500 })
	w, err := objects.GetWitness(db, witnessID(1))
	if err != nil {
		t.Fatal(err)
	}
	before := objects.GetBalance(db, w.WitnessAccount, protos.CoreAssetID)
	for num := uint32(1); num <= 2; num++ {
		if err := tp.UpdateSigningWitness(db, w, num, NewSchedule(db).SlotTime(1)); err != nil {
			t.Fatal(err)
		}
	}
	if got := objects.GetBalance(db, w.WitnessAccount, protos.CoreAssetID) - before; got != 1500 {
		t.Fatalf("paid %d", got)
	}
	if dgp.WitnessBudget != 0 || w.LastConfirmedBlockNum != 2 || w.LastAslot != 1 {
		t.Fatalf("budget %d confirmed %d aslot %d", dgp.WitnessBudget, w.LastConfirmedBlockNum, w.LastAslot)
	}

	confirm := func(confirmed ...uint32) uint32 {
		for i, n := range confirmed {
			wit, _ := objects.GetWitness(db, witnessID(uint64(i+1)))
			modify(t, db, wit, func() { wit.LastConfirmedBlockNum = n })
		}
		lib, err := tp.UpdateLastIrreversibleBlock(db)
		if err != nil {
			t.Fatal(err)
		}
		return lib
	}
	if lib := confirm(5, 7, 9); lib != 5 {
		t.Fatalf("lib %d", lib)
	}
	if lib := confirm(8, 8, 9); lib != 8 {
		t.Fatalf("lib %d", lib)
	}
	if lib := confirm(1, 1, 1); lib != 8 {
		t.Fatalf("lib went back to %d", lib)
	}
}

func TestNextMaintenanceTime(t *testing.T) {
	cases := []struct {
		next, blockNum, timestamp, head, want uint32
	}{
		{0, 1, 1600000020, 1600000020, 1600002000},
		{1600002000, 5, 1600001000, 1600001000, 1600002000},
		{1600002000, 9, 1600002000, 1600002000, 1600005600},
		{1600002000, 9, 1600009300, 1600009300, 1600009200 + 3600},
	}
	for _, c := range cases {
		if got := nextMaintenanceTime(c.next, 3600, c.blockNum, c.timestamp, c.head); got != c.want {
			t.Errorf("%+v: got %d", c, got)
		}
	}
}

func TestPerformChainMaintenance(t *testing.T) {
	chain := newChain(t, 4)
	db := chain.DB()
	tp := newTdpos(t)

	gpo := objects.GlobalProperties(db)
	modify(t, db, gpo, func() {
		gpo.Parameters.WitnessNumberOfElection = 3
		gpo.Parameters.CommitteeNumberOfElection = 3
	})
	setVotes(t, db, witnessID(4), 5000)
	setVotes(t, db, witnessID(1), 3000)
	setVotes(t, db, committeeID(3), 2000)
	// init2 loses both elections on vote id
	loser := chain.Account(mock.WitnessName(2))

	now := mock.GenesisTimestamp + 30
	if err := chain.SetTime(now); err != nil {
		t.Fatal(err)
	}
	pending := gpo.Parameters
	pending.WitnessPayPerBlock = 7
	modify(t, db, gpo, func() { gpo.PendingParameters = &pending })

	supplyBefore := coreSupply(t, db)
	if err := tp.PerformChainMaintenance(db, 11, now); err != nil {
		t.Fatal(err)
	}

	wantActive := []protos.ObjectID{witnessID(4), witnessID(1), witnessID(2)}
	if len(gpo.ActiveWitnesses) != 3 {
		t.Fatalf("active %v", gpo.ActiveWitnesses)
	}
	for i := range wantActive {
		if gpo.ActiveWitnesses[i] != wantActive[i] {
			t.Fatalf("active %v want %v", gpo.ActiveWitnesses, wantActive)
		}
	}
	witnessAcc, _ := objects.GetAccount(db, protos.WitnessAccountID)
	if witnessAcc.Active.WeightThreshold != (5000+3000+1000)/2+1 || len(witnessAcc.Active.AccountAuths) != 3 {
		t.Fatalf("witness authority %+v", witnessAcc.Active)
	}
	committeeAcc, _ := objects.GetAccount(db, protos.CommitteeAccountID)
	if committeeAcc.Active.WeightThreshold != 2 || len(committeeAcc.Active.AccountAuths) != 3 {
		t.Fatalf("committee authority %+v", committeeAcc.Active)
	}
	losers := objects.GetUnsuccessfulCandidates(db).Candidates
	if len(losers) != 1 || losers[0] != loser {
		t.Fatalf("unsuccessful %v want %s", losers, loser)
	}

	if gpo.PendingParameters != nil || gpo.Parameters.WitnessPayPerBlock != 7 {
		t.Fatal("pending parameters not applied")
	}
	dgp := objects.DynamicGlobalProperties(db)
	if dgp.NextMaintenanceTime <= now || dgp.NextMaintenanceTime%3600 != 0 {
		t.Fatalf("next maintenance %d", dgp.NextMaintenanceTime)
	}
	blocks := (dgp.NextMaintenanceTime - now + 2) / 3
	if dgp.WitnessBudget != protos.Share(7*blocks) || dgp.LastBudgetTime != now {
		t.Fatalf("witness budget %d", dgp.WitnessBudget)
	}
	first := lastBudgetRecord(db)
	if first == nil || first.Record.CandidatesBudget != gpo.Parameters.CandidateAwardBudget {
		t.Fatalf("budget record %+v", first)
	}
	if got := coreSupply(t, db) - supplyBefore; got != first.Record.SupplyDelta || got != dgp.WitnessBudget+first.Record.CandidatesBudget {
		t.Fatalf("supply moved by %d, record says %d", got, first.Record.SupplyDelta)
	}

	// the next run pays the award of the first record
	loserBefore := objects.GetBalance(db, loser, protos.CoreAssetID)
	later := dgp.NextMaintenanceTime + 6
	if err := chain.SetTime(later); err != nil {
		t.Fatal(err)
	}
	if err := tp.PerformChainMaintenance(db, 1300, later); err != nil {
		t.Fatal(err)
	}
	award := first.Record.CandidatesBudget
	committeePart := award * protos.Share(gpo.Parameters.CommitteePercentOfCandidateAward) / protos.Share(protos.FullPercent)
	loserPart := (award - committeePart) * protos.Share(gpo.Parameters.UnsuccessfulCandidatesPercent) / protos.Share(protos.FullPercent)
	if got := objects.GetBalance(db, loser, protos.CoreAssetID) - loserBefore; got != loserPart {
		t.Fatalf("unsuccessful candidate got %d want %d", got, loserPart)
	}
	second := lastBudgetRecord(db)
	if second.ID() == first.ID() || second.Record.TimeSinceLastBudget != uint64(later-now) {
		t.Fatalf("second record %+v", second.Record)
	}
	if second.Record.LeftoverCandidates < 0 || second.Record.LeftoverCandidates >= award {
		t.Fatalf("leftover %d of %d", second.Record.LeftoverCandidates, award)
	}
}

func coreSupply(t *testing.T, db *objdb.Database) protos.Share {
	dyn, err := objects.GetDynamicData(db, objects.CoreAsset(db))
	if err != nil {
		t.Fatal(err)
	}
	return dyn.CurrentSupply
}

func TestStatus(t *testing.T) {
	chain := newChain(t, 3)
	st := GetStatus(chain.DB())
	if len(st.ActiveWitnesses) != 3 || st.ParticipationRate != uint32(protos.FullPercent) {
		t.Fatalf("status %+v", st)
	}
	if len(st.GetCurrentValidatorsInfo()) == 0 {
		t.Fatal("empty validators info")
	}
}

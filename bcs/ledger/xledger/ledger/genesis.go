package ledger

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

const (
	DefaultCoreSymbol    = "XGR"
	DefaultCorePrecision = 5
)

type InitialAccount struct {
	Name             string           `json:"name"`
	OwnerKey         protos.PublicKey `json:"owner_key"`
	ActiveKey        protos.PublicKey `json:"active_key"`
	IsLifetimeMember bool             `json:"is_lifetime_member"`
}

type InitialAsset struct {
	Symbol      string       `json:"symbol"`
	IssuerName  string       `json:"issuer_name"`
	Description string       `json:"description"`
	Precision   uint8        `json:"precision"`
	MaxSupply   protos.Share `json:"max_supply"`
	IsBitasset  bool         `json:"is_bitasset"`
}

type InitialBalance struct {
	OwnerName   string       `json:"owner_name"`
	AssetSymbol string       `json:"asset_symbol"`
	Amount      protos.Share `json:"amount"`
}

type InitialWitness struct {
	OwnerName       string           `json:"owner_name"`
	BlockSigningKey protos.PublicKey `json:"block_signing_key"`
}

type InitialCommitteeMember struct {
	OwnerName string `json:"owner_name"`
}

// GenesisState is the initial chain state, loaded from json.
type GenesisState struct {
	InitialTimestamp uint32       `json:"initial_timestamp"`
	MaxCoreSupply    protos.Share `json:"max_core_supply"`
	CoreSymbol       string       `json:"core_symbol"`
	// InitialParameters override the default chain parameters by their
	// mapstructure names.
	InitialParameters          map[string]interface{}           `json:"initial_parameters"`
	ImmutableParameters        objects.ImmutableChainParameters `json:"immutable_parameters"`
	InitialAccounts            []InitialAccount                 `json:"initial_accounts"`
	InitialAssets              []InitialAsset                   `json:"initial_assets"`
	InitialAccountBalances     []InitialBalance                 `json:"initial_account_balances"`
	InitialActiveWitnesses     int                              `json:"initial_active_witnesses"`
	InitialWitnessCandidates   []InitialWitness                 `json:"initial_witness_candidates"`
	InitialCommitteeCandidates []InitialCommitteeMember         `json:"initial_committee_candidates"`
}

// LoadGenesis reads a genesis file.
func LoadGenesis(path string) (*GenesisState, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis")
	}
	return ParseGenesis(raw)
}

func ParseGenesis(raw []byte) (*GenesisState, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("genesis config is empty")
	}
	gs := &GenesisState{}
	if err := json.Unmarshal(raw, gs); err != nil {
		return nil, errors.Wrap(err, "parse genesis")
	}
	if gs.MaxCoreSupply == 0 {
		gs.MaxCoreSupply = protos.MaxShareSupply
	}
	if gs.CoreSymbol == "" {
		gs.CoreSymbol = DefaultCoreSymbol
	}
	return gs, nil
}

// ChainID is the keccak256 of the canonical json of the genesis state.
func (gs *GenesisState) ChainID() (protos.ChainID, error) {
	raw, err := json.Marshal(gs)
	if err != nil {
		return protos.ChainID{}, err
	}
	return protos.ChainID(crypto.Keccak256Hash(raw)), nil
}

// Parameters returns the initial chain parameters.
func (gs *GenesisState) Parameters() (protos.ChainParameters, error) {
	params := protos.DefaultChainParameters()
	if len(gs.InitialParameters) == 0 {
		return params, params.Validate()
	}
	return params.WithOverrides(gs.InitialParameters)
}

func (gs *GenesisState) validate(params protos.ChainParameters) error {
	if gs.InitialTimestamp == 0 || gs.InitialTimestamp%uint32(params.BlockInterval) != 0 {
		return common.ErrGenesisInvalid.More("initial timestamp must be a non zero multiple of the block interval")
	}
	if len(gs.InitialWitnessCandidates) == 0 {
		return common.ErrGenesisInvalid.More("cannot start a chain with zero witnesses")
	}
	if gs.InitialActiveWitnesses <= 0 || gs.InitialActiveWitnesses > len(gs.InitialWitnessCandidates) {
		return common.ErrGenesisInvalid.More("initial active witnesses must lie in [1, %d]", len(gs.InitialWitnessCandidates))
	}
	imm := gs.ImmutableParameters
	if imm.MinWitnessCount&1 != 1 || imm.MinCommitteeMemberCount&1 != 1 {
		return common.ErrGenesisInvalid.More("minimum witness and committee counts must be odd")
	}
	if params.WitnessNumberOfElection < imm.MinWitnessCount ||
		len(gs.InitialWitnessCandidates) < int(params.WitnessNumberOfElection) {
		return common.ErrGenesisInvalid.More("witness election count %d out of range", params.WitnessNumberOfElection)
	}
	if params.CommitteeNumberOfElection < imm.MinCommitteeMemberCount ||
		len(gs.InitialCommitteeCandidates) < int(params.CommitteeNumberOfElection) {
		return common.ErrGenesisInvalid.More("committee election count %d out of range", params.CommitteeNumberOfElection)
	}
	return nil
}

type genesisBuilder struct {
	gs    *GenesisState
	db    *objdb.Database
	reg   *evaluator.Registry
	state *evaluator.TrxState
}

// InitGenesis builds the initial object graph on an empty db. Operations are
// applied through reg with authority checks skipped and fees zeroed; undo
// history stays disabled until the graph is complete.
func InitGenesis(chain evaluator.Chain, reg *evaluator.Registry, gs *GenesisState) error {
	db := chain.DB()
	params, err := gs.Parameters()
	if err != nil {
		return common.ErrGenesisInvalid.More("initial parameters: %v", err)
	}
	if err := gs.validate(params); err != nil {
		return err
	}
	chainID, err := gs.ChainID()
	if err != nil {
		return err
	}

	db.Disable()
	b := &genesisBuilder{
		gs:    gs,
		db:    db,
		reg:   reg,
		state: evaluator.NewTrxState(chain, nil, evaluator.ApplyBlockMode, evaluator.ReplaySkip),
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"special accounts", b.specialAccounts},
		{"core asset", b.coreAsset},
		{"global properties", func() error { return b.globals(params, chainID) }},
		{"accounts", b.accounts},
		{"assets", b.assets},
		{"balances", b.balances},
		{"candidates", b.candidates},
		{"schedule", func() error { return b.schedule(params) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return errors.Wrapf(err, "genesis %s", s.name)
		}
	}
	db.Enable()
	chain.Logger().Info("genesis initialized", "chain_id", chainID, "witnesses", len(gs.InitialWitnessCandidates))
	return nil
}

func (b *genesisBuilder) createAccount(name string, id protos.ObjectID, threshold uint32) error {
	acc := &objects.Account{
		Name:                     name,
		Registrar:                id,
		MembershipExpirationDate: protos.MaxTime,
		Owner:                    protos.Authority{WeightThreshold: threshold},
		Active:                   protos.Authority{WeightThreshold: threshold},
	}
	if err := b.db.Create(acc); err != nil {
		return err
	}
	if acc.ID() != id {
		return common.ErrGenesisInvalid.More("account %s created as %s, want %s", name, acc.ID(), id)
	}
	stats := &objects.AccountStatistics{Owner: acc.ID()}
	if err := b.db.Create(stats); err != nil {
		return err
	}
	return b.db.Modify(acc, func() { acc.Statistics = stats.ID() })
}

func (b *genesisBuilder) specialAccounts() error {
	for _, a := range []struct {
		name      string
		id        protos.ObjectID
		threshold uint32
	}{
		{"committee-account", protos.CommitteeAccountID, 1},
		{"witness-account", protos.WitnessAccountID, 1},
		{"committee-relaxed", protos.RelaxedCommitteeAccountID, 1},
		{"null-account", protos.NullAccountID, 1},
		{"temp-account", protos.TempAccountID, 0},
	} {
		if err := b.createAccount(a.name, a.id, a.threshold); err != nil {
			return err
		}
	}
	return nil
}

func (b *genesisBuilder) coreAsset() error {
	dyn := &objects.AssetDynamicData{CurrentSupply: b.gs.MaxCoreSupply}
	if err := b.db.Create(dyn); err != nil {
		return err
	}
	core := &objects.Asset{
		Symbol:    b.gs.CoreSymbol,
		Precision: DefaultCorePrecision,
		Issuer:    protos.CommitteeAccountID,
		Options: protos.AssetOptions{
			MaxSupply:         b.gs.MaxCoreSupply,
			IssuerPermissions: protos.WhiteList,
			CoreExchangeRate: protos.Price{
				Base:  protos.NewAsset(1, protos.CoreAssetID),
				Quote: protos.NewAsset(1, protos.CoreAssetID),
			},
		},
		DynamicAssetDataID: dyn.ID(),
	}
	if err := b.db.Create(core); err != nil {
		return err
	}
	if core.ID() != protos.CoreAssetID {
		return common.ErrGenesisInvalid.More("core asset created as %s", core.ID())
	}
	// the committee holds the whole supply until balances are handed out
	return objects.AdjustBalance(b.db, protos.CommitteeAccountID, protos.NewAsset(b.gs.MaxCoreSupply, protos.CoreAssetID))
}

func (b *genesisBuilder) globals(params protos.ChainParameters, chainID protos.ChainID) error {
	// fees are enabled once the graph is built
	params.CurrentFees = nil
	if err := b.db.Create(&objects.GlobalProperty{Parameters: params}); err != nil {
		return err
	}

	dgp := &objects.DynamicGlobalProperty{
		Time:              b.gs.InitialTimestamp,
		RecentSlotsFilled: ^uint64(0),
	}
	if err := b.db.Create(dgp); err != nil {
		return err
	}
	if err := b.db.Create(&objects.UnsuccessfulCandidates{}); err != nil {
		return err
	}
	if err := b.db.Create(&objects.ChainProperty{ChainID: chainID, ImmutableParameters: b.gs.ImmutableParameters}); err != nil {
		return err
	}
	// slot of block zero; later slots are created as blocks arrive
	return b.db.Create(&objects.BlockSummary{})
}

func (b *genesisBuilder) apply(op protos.Operation) (protos.OperationResult, error) {
	if err := op.Validate(); err != nil {
		return nil, common.ErrInvalidOperation.More("%s: %v", op.OpType(), err)
	}
	return b.reg.Run(b.state, op)
}

func (b *genesisBuilder) accountID(name string) (protos.ObjectID, error) {
	acc, err := objects.AccountByName(b.db, name)
	if err != nil {
		return protos.ObjectID{}, common.ErrGenesisInvalid.More("unknown account %s", name)
	}
	return acc.ID(), nil
}

func (b *genesisBuilder) accounts() error {
	for _, a := range b.gs.InitialAccounts {
		active := a.ActiveKey
		if active.IsZero() {
			active = a.OwnerKey
		}
		res, err := b.apply(&protos.AccountCreateOperation{
			Registrar: protos.TempAccountID,
			Name:      a.Name,
			Owner:     protos.NewKeyAuthority(1, a.OwnerKey),
			Active:    protos.NewKeyAuthority(1, active),
			Options:   protos.AccountOptions{MemoKey: active},
		})
		if err != nil {
			return errors.Wrapf(err, "account %s", a.Name)
		}
		if !a.IsLifetimeMember {
			continue
		}
		id := res.(*protos.ObjectIDResult).ID
		if _, err := b.apply(&protos.AccountUpgradeOperation{AccountToUpgrade: id, UpgradeToLifetimeMember: true}); err != nil {
			return errors.Wrapf(err, "upgrade %s", a.Name)
		}
	}
	return nil
}

func (b *genesisBuilder) assets() error {
	for _, a := range b.gs.InitialAssets {
		issuer, err := b.accountID(a.IssuerName)
		if err != nil {
			return err
		}
		perms := protos.UIAIssuerPermissionMask
		op := &protos.AssetCreateOperation{
			Issuer:    issuer,
			Symbol:    a.Symbol,
			Precision: a.Precision,
			CommonOptions: protos.AssetOptions{
				MaxSupply:   a.MaxSupply,
				Description: a.Description,
				CoreExchangeRate: protos.Price{
					Base:  protos.NewAsset(1, protos.ObjectID{}),
					Quote: protos.NewAsset(1, protos.CoreAssetID),
				},
			},
		}
		if a.IsBitasset {
			perms = protos.AssetIssuerPermissionMask
			op.BitassetOpts = &protos.BitassetOptions{
				FeedLifetimeSec:              24 * 3600,
				MinimumFeeds:                 1,
				ForceSettlementDelaySec:      24 * 3600,
				ForceSettlementOffsetPercent: 0,
				MaximumForceSettlementVolume: 20 * protos.OnePercent,
				ShortBackingAsset:            protos.CoreAssetID,
			}
		}
		op.CommonOptions.IssuerPermissions = perms
		if _, err := b.apply(op); err != nil {
			return errors.Wrapf(err, "asset %s", a.Symbol)
		}
	}
	return nil
}

func (b *genesisBuilder) balances() error {
	var handedCore protos.Share
	for _, h := range b.gs.InitialAccountBalances {
		owner, err := b.accountID(h.OwnerName)
		if err != nil {
			return err
		}
		asset, err := objects.AssetBySymbol(b.db, h.AssetSymbol)
		if err != nil {
			return common.ErrGenesisInvalid.More("unknown asset %s", h.AssetSymbol)
		}
		if asset.IsMarketIssued() {
			return common.ErrGenesisInvalid.More("asset %s is market issued", h.AssetSymbol)
		}
		if asset.ID() == protos.CoreAssetID {
			handedCore += h.Amount
			if err := objects.AdjustBalance(b.db, protos.CommitteeAccountID, protos.NewAsset(-h.Amount, asset.ID())); err != nil {
				return errors.Wrap(err, "core handout exceeds supply")
			}
		} else {
			dyn, err := objects.GetDynamicData(b.db, asset)
			if err != nil {
				return err
			}
			if dyn.CurrentSupply+h.Amount > asset.Options.MaxSupply {
				return common.ErrGenesisInvalid.More("handouts of %s exceed max supply", asset.Symbol)
			}
			if err := b.db.Modify(dyn, func() { dyn.CurrentSupply += h.Amount }); err != nil {
				return err
			}
		}
		if err := objects.AdjustBalance(b.db, owner, protos.NewAsset(h.Amount, asset.ID())); err != nil {
			return err
		}
	}
	if handedCore == 0 {
		return nil
	}
	// core supply is what was handed out, the rest stays in the reserve
	committee := objects.GetBalance(b.db, protos.CommitteeAccountID, protos.CoreAssetID)
	if err := objects.AdjustBalance(b.db, protos.CommitteeAccountID, protos.NewAsset(-committee, protos.CoreAssetID)); err != nil {
		return err
	}
	dyn, err := objects.GetDynamicData(b.db, objects.CoreAsset(b.db))
	if err != nil {
		return err
	}
	return b.db.Modify(dyn, func() { dyn.CurrentSupply = handedCore })
}

func (b *genesisBuilder) candidates() error {
	// witness 1.6.0 is the null witness
	null := &objects.Witness{}
	if err := b.db.Create(null); err != nil {
		return err
	}
	if err := b.db.Remove(null); err != nil {
		return err
	}
	for _, w := range b.gs.InitialWitnessCandidates {
		id, err := b.accountID(w.OwnerName)
		if err != nil {
			return err
		}
		if _, err := b.apply(&protos.WitnessCreateOperation{WitnessAccount: id, BlockSigningKey: w.BlockSigningKey}); err != nil {
			return errors.Wrapf(err, "witness %s", w.OwnerName)
		}
	}
	for _, c := range b.gs.InitialCommitteeCandidates {
		id, err := b.accountID(c.OwnerName)
		if err != nil {
			return err
		}
		if _, err := b.apply(&protos.CommitteeMemberCreateOperation{CommitteeMemberAccount: id}); err != nil {
			return errors.Wrapf(err, "committee member %s", c.OwnerName)
		}
	}
	return nil
}

func (b *genesisBuilder) schedule(params protos.ChainParameters) error {
	gpo := objects.GlobalProperties(b.db)
	var active []protos.ObjectID
	for i := 1; i <= b.gs.InitialActiveWitnesses; i++ {
		active = append(active, protos.NewObjectID(protos.ProtocolSpace, protos.ObjTypeWitness, uint64(i)))
	}
	var members []protos.ObjectID
	for _, obj := range b.db.All(protos.ProtocolSpace, protos.ObjTypeCommitteeMember) {
		members = append(members, obj.ID())
	}
	if err := b.db.Modify(gpo, func() {
		gpo.ActiveWitnesses = active
		gpo.ActiveCommitteeMembers = members
		gpo.Parameters.CurrentFees = params.CurrentFees
	}); err != nil {
		return err
	}
	if err := b.committeeAuthority(members); err != nil {
		return err
	}
	return b.db.Create(&objects.WitnessSchedule{CurrentShuffledWitnesses: append([]protos.ObjectID(nil), active...)})
}

// committeeAuthority makes the initial committee a majority multisig of the
// committee account until the first maintenance recounts votes.
func (b *genesisBuilder) committeeAuthority(members []protos.ObjectID) error {
	if len(members) == 0 {
		return nil
	}
	auth := protos.Authority{WeightThreshold: uint32(len(members)/2 + 1)}
	for _, id := range members {
		m, err := objects.GetCommitteeMember(b.db, id)
		if err != nil {
			return err
		}
		auth.AddAccount(m.CommitteeMemberAccount, 1)
	}
	acc, err := objects.GetAccount(b.db, protos.CommitteeAccountID)
	if err != nil {
		return err
	}
	return b.db.Modify(acc, func() {
		acc.Owner = auth
		acc.Active = auth
	})
}

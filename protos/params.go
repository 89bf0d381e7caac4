package protos

import (
	"errors"

	"github.com/mitchellh/mapstructure"
)

// OpFee is the flat fee of one operation type.
type OpFee struct {
	OpType uint8
	Fee    Share
}

// ChainParameters are the consensus parameters the committee may change.
type ChainParameters struct {
	BlockInterval                    uint8   `mapstructure:"block_interval"`
	MaintenanceInterval              uint32  `mapstructure:"maintenance_interval"`
	MaintenanceSkipSlots             uint8   `mapstructure:"maintenance_skip_slots"`
	CommitteeProposalReviewPeriod    uint32  `mapstructure:"committee_proposal_review_period"`
	MaximumTransactionSize           uint32  `mapstructure:"maximum_transaction_size"`
	MaximumBlockSize                 uint32  `mapstructure:"maximum_block_size"`
	MaximumTimeUntilExpiration       uint32  `mapstructure:"maximum_time_until_expiration"`
	MaximumProposalLifetime          uint32  `mapstructure:"maximum_proposal_lifetime"`
	MaximumAssetFeedPublishers       uint8   `mapstructure:"maximum_asset_feed_publishers"`
	MaximumWitnessCount              uint16  `mapstructure:"maximum_witness_count"`
	MaximumCommitteeCount            uint16  `mapstructure:"maximum_committee_count"`
	WitnessNumberOfElection          uint16  `mapstructure:"witness_number_of_election"`
	CommitteeNumberOfElection        uint16  `mapstructure:"committee_number_of_election"`
	MaximumAuthorityMembership       uint16  `mapstructure:"maximum_authority_membership"`
	MaxAuthorityDepth                uint8   `mapstructure:"max_authority_depth"`
	WitnessPayPerBlock               Share   `mapstructure:"witness_pay_per_block"`
	CandidateAwardBudget             Share   `mapstructure:"candidate_award_budget"`
	CommitteePercentOfCandidateAward uint16  `mapstructure:"committee_percent_of_candidate_award"`
	UnsuccessfulCandidatesPercent    uint16  `mapstructure:"unsuccessful_candidates_percent"`
	WitnessCandidateFreeze           Share   `mapstructure:"witness_candidate_freeze"`
	CommitteeCandidateFreeze         Share   `mapstructure:"committee_candidate_freeze"`
	CrontabSuspendThreshold          uint16  `mapstructure:"crontab_suspend_threshold"`
	CrontabSuspendExpiration         uint32  `mapstructure:"crontab_suspend_expiration"`
	AssignedTaskLifeCycle            uint32  `mapstructure:"assigned_task_life_cycle"`
	MaximumRunTimeRatio              uint16  `mapstructure:"maximum_run_time_ratio"`
	MaximumContractPrivateDataSize   uint32  `mapstructure:"maximum_contract_private_data_size"`
	MaximumContractTotalDataSize     uint32  `mapstructure:"maximum_contract_total_data_size"`
	CurrentFees                      []OpFee `mapstructure:"current_fees"`
}

// Protocol limits that parameters may never exceed.
const (
	MinBlockInterval          = 1
	MaxBlockInterval          = 30
	MaxUndoHistory            = 10000
	MaxCrontabPeriod          = 2592000 * 3
	CrontabExpirationCap      = 2592000
	AssignedTaskLifeCycleCap  = 7200
	IrreversibleThreshold     = 70 * OnePercent
	CoreAssetCycleRate        = 17
	CoreAssetCycleRateBits    = 32
	MinTransactionSizeDivisor = 50
)

func DefaultChainParameters() ChainParameters {
	return ChainParameters{
		BlockInterval:                    3,
		MaintenanceInterval:              3600,
		MaintenanceSkipSlots:             3,
		CommitteeProposalReviewPeriod:    600,
		MaximumTransactionSize:           2048 * 20,
		MaximumBlockSize:                 2 * 1024 * 1024,
		MaximumTimeUntilExpiration:       86400,
		MaximumProposalLifetime:          2419200,
		MaximumAssetFeedPublishers:       10,
		MaximumWitnessCount:              1001,
		MaximumCommitteeCount:            1001,
		WitnessNumberOfElection:          25,
		CommitteeNumberOfElection:        11,
		MaximumAuthorityMembership:       10,
		MaxAuthorityDepth:                2,
		WitnessPayPerBlock:               1000,
		CandidateAwardBudget:             100000,
		CommitteePercentOfCandidateAward: 10 * OnePercent,
		UnsuccessfulCandidatesPercent:    10 * OnePercent,
		WitnessCandidateFreeze:           1000,
		CommitteeCandidateFreeze:         1000,
		CrontabSuspendThreshold:          3,
		CrontabSuspendExpiration:         2592000,
		AssignedTaskLifeCycle:            3600,
		MaximumRunTimeRatio:              750,
		MaximumContractPrivateDataSize:   2 * 1024,
		MaximumContractTotalDataSize:     64 * 1024,
	}
}

func (p ChainParameters) Validate() error {
	if p.BlockInterval < MinBlockInterval || p.BlockInterval > MaxBlockInterval {
		return errors.New("block interval out of range")
	}
	if p.MaintenanceInterval <= uint32(p.BlockInterval) || p.MaintenanceInterval%uint32(p.BlockInterval) != 0 {
		return errors.New("maintenance interval must be a multiple of block interval")
	}
	if p.MaximumBlockSize < 1024 {
		return errors.New("maximum block size too small")
	}
	if p.MaximumTransactionSize < 512 || p.MaximumTransactionSize > p.MaximumBlockSize {
		return errors.New("maximum transaction size out of range")
	}
	if p.CommitteeProposalReviewPeriod > p.MaximumProposalLifetime {
		return errors.New("committee review period exceeds proposal lifetime")
	}
	if p.WitnessNumberOfElection == 0 || p.WitnessNumberOfElection > p.MaximumWitnessCount {
		return errors.New("witness election count out of range")
	}
	if p.CommitteeNumberOfElection == 0 || p.CommitteeNumberOfElection > p.MaximumCommitteeCount {
		return errors.New("committee election count out of range")
	}
	if p.CommitteePercentOfCandidateAward > FullPercent || p.UnsuccessfulCandidatesPercent > FullPercent {
		return errors.New("candidate award percent out of range")
	}
	if p.MaximumRunTimeRatio == 0 || p.MaximumRunTimeRatio > FullPercent {
		return errors.New("run time ratio out of range")
	}
	if p.CrontabSuspendThreshold == 0 {
		return errors.New("crontab suspend threshold must be positive")
	}
	return nil
}

// Fee returns the flat fee of op, zero when unlisted.
func (p ChainParameters) Fee(op OpType) Share {
	for _, f := range p.CurrentFees {
		if f.OpType == uint8(op) {
			return f.Fee
		}
	}
	return 0
}

// MaxRuntimeMicros is the cumulative operation runtime budget of one transaction.
func (p ChainParameters) MaxRuntimeMicros() int64 {
	return int64(p.BlockInterval) * 1000000 * int64(p.MaximumRunTimeRatio) / int64(FullPercent)
}

// WithOverrides returns a copy of p with the named fields replaced.
func (p ChainParameters) WithOverrides(overrides map[string]interface{}) (ChainParameters, error) {
	out := p
	out.CurrentFees = append([]OpFee(nil), p.CurrentFees...)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(overrides); err != nil {
		return p, err
	}
	return out, out.Validate()
}

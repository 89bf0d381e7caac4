// Package evaluator implements the evaluators of the built in operations.
package evaluator

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/evaluator"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// RegisterAll binds the account, asset, governance and nh asset evaluators.
func RegisterAll(reg *evaluator.Registry) {
	reg.Register(protos.OpTransfer, transferEvaluator{})
	reg.Register(protos.OpAccountCreate, accountCreateEvaluator{})
	reg.Register(protos.OpAccountUpdate, accountUpdateEvaluator{})
	reg.Register(protos.OpAccountUpgrade, accountUpgradeEvaluator{})
	reg.Register(protos.OpTemporaryAuthorityChange, temporaryAuthorityEvaluator{})

	reg.Register(protos.OpAssetCreate, assetCreateEvaluator{})
	reg.Register(protos.OpAssetUpdate, assetUpdateEvaluator{})
	reg.Register(protos.OpAssetUpdateBitasset, assetUpdateBitassetEvaluator{})
	reg.Register(protos.OpAssetUpdateFeedProducers, assetUpdateFeedProducersEvaluator{})
	reg.Register(protos.OpAssetIssue, assetIssueEvaluator{})
	reg.Register(protos.OpAssetReserve, assetReserveEvaluator{})
	reg.Register(protos.OpAssetSettle, assetSettleEvaluator{})
	reg.Register(protos.OpAssetGlobalSettle, assetGlobalSettleEvaluator{})
	reg.Register(protos.OpAssetPublishFeed, assetPublishFeedEvaluator{})

	reg.Register(protos.OpWitnessCreate, witnessCreateEvaluator{})
	reg.Register(protos.OpWitnessUpdate, witnessUpdateEvaluator{})
	reg.Register(protos.OpCommitteeMemberCreate, committeeCreateEvaluator{})
	reg.Register(protos.OpCommitteeMemberUpdate, committeeUpdateEvaluator{})
	reg.Register(protos.OpCommitteeMemberUpdateGlobalParameters, updateGlobalParametersEvaluator{})

	reg.Register(protos.OpRegisterNHAssetCreator, registerNHAssetCreatorEvaluator{})
	reg.Register(protos.OpCreateWorldView, createWorldViewEvaluator{})
	reg.Register(protos.OpCreateNHAsset, createNHAssetEvaluator{})
	reg.Register(protos.OpDeleteNHAsset, deleteNHAssetEvaluator{})
	reg.Register(protos.OpTransferNHAsset, transferNHAssetEvaluator{})
	reg.Register(protos.OpRelateNHAsset, relateNHAssetEvaluator{})
}

var void = &protos.VoidResult{}

func objectResult(id protos.ObjectID) protos.OperationResult {
	return &protos.ObjectIDResult{ID: id}
}

// verifyAuthorityAccounts checks membership size and that referenced accounts exist.
func verifyAuthorityAccounts(db *objdb.Database, params *protos.ChainParameters, auth *protos.Authority) error {
	if auth == nil {
		return nil
	}
	if auth.NumAuths() > int(params.MaximumAuthorityMembership) {
		return common.ErrRuleViolation.More("authority has %d members, maximum is %d",
			auth.NumAuths(), params.MaximumAuthorityMembership)
	}
	for _, a := range auth.AccountAuths {
		if _, err := objects.GetAccount(db, a.Account); err != nil {
			return err
		}
	}
	return nil
}

func requireLifetimeMember(db *objdb.Database, id protos.ObjectID) (*objects.Account, error) {
	acc, err := objects.GetAccount(db, id)
	if err != nil {
		return nil, err
	}
	if !acc.IsLifetimeMember() {
		return nil, common.ErrRuleViolation.More("account %s is not a lifetime member", acc.Name)
	}
	return acc, nil
}

// nextVoteID hands out the next vote id of typ.
func nextVoteID(db *objdb.Database, typ uint8) (protos.VoteID, error) {
	gpo := objects.GlobalProperties(db)
	var vote protos.VoteID
	err := db.Modify(gpo, func() {
		vote = protos.NewVoteID(typ, gpo.NextAvailableVoteID)
		gpo.NextAvailableVoteID++
	})
	return vote, err
}

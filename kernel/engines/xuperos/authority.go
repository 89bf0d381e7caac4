package xuperos

import (
	"github.com/xuperchain/xupergraph/bcs/ledger/xledger/state/objects"
	"github.com/xuperchain/xupergraph/kernel/engines/xuperos/common"
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// signState resolves authorities against a fixed set of signing keys,
// remembering which keys contributed and which accounts already approved.
type signState struct {
	db       *objdb.Database
	now      uint32
	maxDepth int
	// 临时授权合并进active
	withTemporary bool

	keys     map[protos.PublicKey]bool
	approved map[protos.ObjectID]struct{}
}

func newSignState(db *objdb.Database, keys []protos.PublicKey, approved []protos.ObjectID,
	maxDepth int, withTemporary bool) *signState {
	s := &signState{
		db:            db,
		now:           objects.HeadBlockTime(db),
		maxDepth:      maxDepth,
		withTemporary: withTemporary,
		keys:          make(map[protos.PublicKey]bool, len(keys)),
		approved:      make(map[protos.ObjectID]struct{}, len(approved)),
	}
	for _, k := range keys {
		s.keys[k] = false
	}
	for _, id := range approved {
		s.approved[id] = struct{}{}
	}
	return s
}

func (s *signState) signedBy(k protos.PublicKey) bool {
	if _, ok := s.keys[k]; !ok {
		return false
	}
	s.keys[k] = true
	return true
}

// active is the account's active authority with unexpired temporary keys
// added at full weight.
func (s *signState) active(id protos.ObjectID) (*protos.Authority, bool) {
	acc, err := objects.GetAccount(s.db, id)
	if err != nil {
		return nil, false
	}
	auth := acc.Active
	if !s.withTemporary {
		return &auth, true
	}
	temps := objects.TemporaryAuthorities(s.db, id)
	if len(temps) == 0 {
		return &auth, true
	}
	auth.KeyAuths = append([]protos.KeyAuth(nil), acc.Active.KeyAuths...)
	for _, t := range temps {
		if t.ExpirationTime > s.now {
			weight := auth.WeightThreshold
			if weight > 0xffff {
				weight = 0xffff
			}
			auth.AddKey(t.TemporaryActive, uint16(weight))
		}
	}
	return &auth, true
}

func (s *signState) owner(id protos.ObjectID) (*protos.Authority, bool) {
	acc, err := objects.GetAccount(s.db, id)
	if err != nil {
		return nil, false
	}
	return &acc.Owner, true
}

func (s *signState) checkAccount(id protos.ObjectID) bool {
	if _, ok := s.approved[id]; ok {
		return true
	}
	auth, ok := s.active(id)
	if !ok {
		return false
	}
	if s.checkAuthority(auth, 0) {
		s.approved[id] = struct{}{}
		return true
	}
	return false
}

func (s *signState) checkAuthority(auth *protos.Authority, depth int) bool {
	if auth == nil {
		return false
	}
	var total uint64
	threshold := uint64(auth.WeightThreshold)
	for _, k := range auth.KeyAuths {
		if s.signedBy(k.Key) {
			total += uint64(k.Weight)
			if total >= threshold {
				return true
			}
		}
	}
	for _, a := range auth.AccountAuths {
		if _, ok := s.approved[a.Account]; ok {
			total += uint64(a.Weight)
		} else {
			if depth == s.maxDepth {
				continue
			}
			sub, ok := s.active(a.Account)
			if !ok || !s.checkAuthority(sub, depth+1) {
				continue
			}
			s.approved[a.Account] = struct{}{}
			total += uint64(a.Weight)
		}
		if total >= threshold {
			return true
		}
	}
	return total >= threshold
}

func (s *signState) unusedKeys() []protos.PublicKey {
	var out []protos.PublicKey
	for k, used := range s.keys {
		if !used {
			out = append(out, k)
		}
	}
	return out
}

// VerifyAuthority checks that sigKeys together with the already approved
// accounts satisfy every authority ops require. Owner authority also
// satisfies an active requirement.
func (c *Chain) VerifyAuthority(ops protos.OperationList, sigKeys []protos.PublicKey,
	approvedActive, approvedOwner []protos.ObjectID) error {
	return c.verifyAuthority(ops, sigKeys, approvedActive, approvedOwner, false)
}

// verifyAuthority 与VerifyAuthority相同，strict时多余的签名也算失败
func (c *Chain) verifyAuthority(ops protos.OperationList, sigKeys []protos.PublicKey,
	approvedActive, approvedOwner []protos.ObjectID, strict bool) error {
	var (
		active, owner []protos.ObjectID
		other         []protos.Authority
	)
	ops.RequiredAuthorities(&active, &owner, &other)

	// 修改临时授权本身时只认原始active
	withTemporary := true
	for _, op := range ops {
		if op.OpType() == protos.OpTemporaryAuthorityChange {
			withTemporary = false
			break
		}
	}
	maxDepth := int(objects.GlobalProperties(c.db).Parameters.MaxAuthorityDepth)
	s := newSignState(c.db, sigKeys, approvedActive, maxDepth, withTemporary)

	ownerApproved := make(map[protos.ObjectID]struct{}, len(approvedOwner))
	for _, id := range approvedOwner {
		ownerApproved[id] = struct{}{}
	}
	checkOwner := func(id protos.ObjectID) bool {
		if _, ok := ownerApproved[id]; ok {
			return true
		}
		auth, ok := s.owner(id)
		if ok && s.checkAuthority(auth, 0) {
			ownerApproved[id] = struct{}{}
			return true
		}
		return false
	}

	for _, id := range active {
		if !s.checkAccount(id) && !checkOwner(id) {
			return common.ErrMissingActiveAuth.More("account %s", id)
		}
	}
	for _, id := range owner {
		if !checkOwner(id) {
			return common.ErrMissingOwnerAuth.More("account %s", id)
		}
	}
	for i := range other {
		if !s.checkAuthority(&other[i], 0) {
			return common.ErrMissingOtherAuth.More("authority %d", i)
		}
	}
	if strict {
		if unused := s.unusedKeys(); len(unused) > 0 {
			return common.ErrIrrelevantSig.More("unused key %s", unused[0])
		}
	}
	return nil
}

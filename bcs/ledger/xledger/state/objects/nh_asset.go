package objects

import (
	"github.com/xuperchain/xupergraph/kernel/objdb"
	"github.com/xuperchain/xupergraph/protos"
)

// NHAssetCreator is an account registered to create non homogeneous assets.
type NHAssetCreator struct {
	objdb.BaseObject
	Creator    protos.ObjectID
	WorldViews []string
}

func (*NHAssetCreator) ObjectType() (uint8, uint8) {
	return protos.NHAssetSpace, protos.ObjTypeNHAssetCreator
}

func (c *NHAssetCreator) HasWorldView(name string) bool {
	for _, v := range c.WorldViews {
		if v == name {
			return true
		}
	}
	return false
}

type WorldView struct {
	objdb.BaseObject
	Name    string
	Creator protos.ObjectID
	// 关联的创建者对象，第一个是创建者本身
	RelatedCreators []protos.ObjectID
}

func (*WorldView) ObjectType() (uint8, uint8) { return protos.NHAssetSpace, protos.ObjTypeWorldView }

// NHAssetLinks lists the assets related under one contract.
type NHAssetLinks struct {
	Contract protos.ObjectID
	Assets   []protos.ObjectID
}

type NHAsset struct {
	objdb.BaseObject
	Hash    protos.NHHash
	Creator protos.ObjectID
	Owner   protos.ObjectID
	// Active holds the usage right, Dealership may move it through contracts.
	Active         protos.ObjectID
	Dealership     protos.ObjectID
	AssetQualifier string
	WorldView      string
	BaseDescribe   string
	Parent         []NHAssetLinks
	Child          []NHAssetLinks
	CreateTime     uint32
}

func (*NHAsset) ObjectType() (uint8, uint8) { return protos.NHAssetSpace, protos.ObjTypeNHAsset }

func (a *NHAsset) IsLeasing() bool { return a.Owner != a.Active }

// Related reports whether id is listed under contract in links.
func Related(links []NHAssetLinks, contract, id protos.ObjectID) bool {
	for _, l := range links {
		if l.Contract != contract {
			continue
		}
		for _, a := range l.Assets {
			if a == id {
				return true
			}
		}
	}
	return false
}

// AddLink appends id under contract.
func AddLink(links []NHAssetLinks, contract, id protos.ObjectID) []NHAssetLinks {
	for i := range links {
		if links[i].Contract == contract {
			links[i].Assets = append(links[i].Assets, id)
			return links
		}
	}
	return append(links, NHAssetLinks{Contract: contract, Assets: []protos.ObjectID{id}})
}

// RemoveLink drops id from contract, and the contract entry once empty.
func RemoveLink(links []NHAssetLinks, contract, id protos.ObjectID) []NHAssetLinks {
	for i := range links {
		if links[i].Contract != contract {
			continue
		}
		assets := links[i].Assets
		for j, a := range assets {
			if a == id {
				links[i].Assets = append(assets[:j:j], assets[j+1:]...)
				break
			}
		}
		if len(links[i].Assets) == 0 {
			return append(links[:i:i], links[i+1:]...)
		}
		return links
	}
	return links
}

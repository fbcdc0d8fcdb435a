package permission

import (
	"context"

	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
)

// Snapshot は1ユーザー分の認可グラフの読み取りスナップショット
// リクエスト単位でロードし、Checkerが参照する
type Snapshot struct {
	User       User
	UnitAuths  []UnitAuthorization
	GroupAuths []UnitGroupAuthorization
	// GroupMembers はユニットグループID → 所属ユニットID一覧
	GroupMembers map[string][]string
	Grants       []Grant
}

// Repository は認可グラフのリポジトリ
type Repository interface {
	// LoadSnapshot はユーザーの認可状態を一括で読み込む
	LoadSnapshot(ctx context.Context, userID string) (*Snapshot, error)
}

// Checker はリソースに対する権限判定を行う
// 判定結果はリクエスト内でキャッシュされる
type Checker struct {
	snap  *Snapshot
	cache map[string]bool
}

// NewChecker はスナップショットからCheckerを作成する
func NewChecker(snap *Snapshot) *Checker {
	return &Checker{snap: snap, cache: make(map[string]bool)}
}

// User は対象ユーザーを返す
func (c *Checker) User() User {
	return c.snap.User
}

// IsGeneralAdmin はスーパーユーザーまたは全体管理者かを返す
func (c *Checker) IsGeneralAdmin() bool {
	u := c.snap.User
	return u.IsAuthenticated() && (u.IsSuperuser || u.IsGeneralAdmin)
}

// IsAdminOf はリソース管理者かを返す
//
// 全体管理者、リソースのユニットを含むグループのグループ管理者、
// またはユニット管理者のいずれかで真になる。
func (c *Checker) IsAdminOf(res *resource.Resource) bool {
	if !c.snap.User.IsAuthenticated() {
		return false
	}
	key := "admin/" + res.ID
	if v, ok := c.cache[key]; ok {
		return v
	}
	v := c.isAdminOf(res)
	c.cache[key] = v
	return v
}

func (c *Checker) isAdminOf(res *resource.Resource) bool {
	return c.IsAdminOfUnit(res.UnitID)
}

// IsAdminOfUnit はユニット管理者（全体管理者・グループ管理者含む）かを返す
func (c *Checker) IsAdminOfUnit(unitID string) bool {
	if !c.snap.User.IsAuthenticated() {
		return false
	}
	if c.IsGeneralAdmin() {
		return true
	}
	for _, ga := range c.snap.GroupAuths {
		if ga.Level != RoleAdmin {
			continue
		}
		for _, memberID := range c.snap.GroupMembers[ga.UnitGroupID] {
			if memberID == unitID {
				return true
			}
		}
	}
	for _, ua := range c.snap.UnitAuths {
		if ua.UnitID == unitID && ua.Level == RoleAdmin {
			return true
		}
	}
	return false
}

// Has はユーザーがリソースに対して名前付き権限を持つかを返す
//
// スーパーユーザー・全体管理者は常に真。それ以外は、ユニットまたは
// リソースグループへの個別付与、もしくはユニット／グループ上のロールが
// 固定表で権限を含む場合に真。有効権限は任意の付与のOR。
func (c *Checker) Has(res *resource.Resource, perm Permission) bool {
	if !c.snap.User.IsAuthenticated() {
		return false
	}
	key := string(perm) + "/" + res.ID
	if v, ok := c.cache[key]; ok {
		return v
	}
	v := c.has(res, perm)
	c.cache[key] = v
	return v
}

func (c *Checker) has(res *resource.Resource, perm Permission) bool {
	if c.IsGeneralAdmin() {
		return true
	}
	for _, g := range c.snap.Grants {
		if g.Permission != perm {
			continue
		}
		if g.UnitID != "" && g.UnitID == res.UnitID {
			return true
		}
		if g.ResourceGroupID != "" && res.InGroup(g.ResourceGroupID) {
			return true
		}
	}
	for _, ua := range c.snap.UnitAuths {
		if ua.UnitID == res.UnitID && roleImplies(ua.Level, perm) {
			return true
		}
	}
	for _, ga := range c.snap.GroupAuths {
		if !roleImplies(ga.Level, perm) {
			continue
		}
		for _, unitID := range c.snap.GroupMembers[ga.UnitGroupID] {
			if unitID == res.UnitID {
				return true
			}
		}
	}
	return false
}

// ApprovableUnitIDs は can_approve_reservation を持つユニットIDの一覧を返す
// 全体管理者の場合はnil（無制限）を返す
func (c *Checker) ApprovableUnitIDs() []string {
	if c.IsGeneralAdmin() {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, ua := range c.snap.UnitAuths {
		if roleImplies(ua.Level, CanApproveReservation) {
			add(ua.UnitID)
		}
	}
	for _, ga := range c.snap.GroupAuths {
		if roleImplies(ga.Level, CanApproveReservation) {
			for _, unitID := range c.snap.GroupMembers[ga.UnitGroupID] {
				add(unitID)
			}
		}
	}
	for _, g := range c.snap.Grants {
		if g.Permission == CanApproveReservation {
			add(g.UnitID)
		}
	}
	if ids == nil {
		ids = []string{}
	}
	return ids
}

package stringtables

import (
	"github.com/dbalders/demoparser/wire"
)

// UserInfo is a player record from the userinfo table. The entry index is
// the player's slot; the controller entity is slot+1.
type UserInfo struct {
	Name       string
	XUID       uint64
	UserID     int32
	SteamID    uint64
	FakePlayer bool
	IsHLTV     bool
}

const (
	userInfoName       = 1
	userInfoXUID       = 2
	userInfoUserID     = 3
	userInfoSteamID    = 4
	userInfoFakePlayer = 5
	userInfoIsHLTV     = 6
)

// ParseUserInfo decodes a userinfo table value.
func ParseUserInfo(value []byte) (UserInfo, error) {
	m, err := wire.Parse(value)
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{
		Name:       m.String(userInfoName),
		XUID:       m.Uint64(userInfoXUID),
		UserID:     m.Int32(userInfoUserID),
		SteamID:    m.Uint64(userInfoSteamID),
		FakePlayer: m.Bool(userInfoFakePlayer),
		IsHLTV:     m.Bool(userInfoIsHLTV),
	}, nil
}

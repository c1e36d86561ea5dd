package services

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
)

// userSnapshot is the cached form of a materialized user
type userSnapshot struct {
	ID          []byte                 `cbor:"1,keyasint"`
	Email       string                 `cbor:"2,keyasint"`
	Name        string                 `cbor:"3,keyasint,omitempty"`
	RegionCode  string                 `cbor:"4,keyasint,omitempty"`
	RoleID      int64                  `cbor:"5,keyasint,omitempty"`
	Attributes  map[string]interface{} `cbor:"6,keyasint,omitempty"`
	CreatedAt   time.Time              `cbor:"7,keyasint"`
	Permissions []string               `cbor:"8,keyasint"`
}

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	snapshotEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("services: CBOR encoder initialization failed: " + err.Error())
	}

	snapshotDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("services: CBOR decoder initialization failed: " + err.Error())
	}
}

// encodeUser serializes a user and its effective permission set
func encodeUser(user *entities.User) ([]byte, error) {
	snap := userSnapshot{
		ID:          user.ID[:],
		Email:       user.Email,
		Name:        user.Name,
		RegionCode:  user.RegionCode,
		RoleID:      user.RoleID,
		Attributes:  user.Attributes,
		CreatedAt:   user.CreatedAt,
		Permissions: user.Permissions().Strings(),
	}

	data, err := snapshotEncMode.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user snapshot: %w", err)
	}
	return data, nil
}

// decodeUser restores a user from its snapshot with a freshly built permission set
func decodeUser(data []byte) (*entities.User, error) {
	var snap userSnapshot
	if err := snapshotDecMode.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode user snapshot: %w", err)
	}

	id, err := uuid.FromBytes(snap.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id in snapshot: %w", err)
	}

	user := &entities.User{
		ID:         id,
		Email:      snap.Email,
		Name:       snap.Name,
		RegionCode: snap.RegionCode,
		RoleID:     snap.RoleID,
		Attributes: snap.Attributes,
		CreatedAt:  snap.CreatedAt,
	}
	user.SetPermissions(entities.NewPermissionSet(entities.PermissionIDs(snap.Permissions...)...))

	return user, nil
}

package share

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/cradlekeeper/internal/models"
)

// InvitationClaims are the signed contents of a share invitation: enough
// for the accepting device to install a participant ShareContext.
type InvitationClaims struct {
	jwt.RegisteredClaims
	Zone        string                 `json:"zone"`
	RootRecord  string                 `json:"root_record"`
	ProfileName string                 `json:"profile_name"`
	Permission  models.SharePermission `json:"permission"`
}

// Invitation is the presentable share-sheet artifact handed to another
// caregiver: a short title plus the signed token to transmit.
type Invitation struct {
	Title string
	Token string
}

const invitationValidity = 14 * 24 * time.Hour

// NewInvitation signs an invitation for the zone with the device secret.
func NewInvitation(zone, rootRecord, profileName string, permission models.SharePermission, secretKey []byte) (*Invitation, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, InvitationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(invitationValidity)),
		},
		Zone:        zone,
		RootRecord:  rootRecord,
		ProfileName: profileName,
		Permission:  permission,
	})

	signed, err := token.SignedString(secretKey)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Share %s", profileName)
	if profileName == "" {
		title = "Share profile"
	}
	return &Invitation{Title: title, Token: signed}, nil
}

// ParseInvitation validates the token and returns its claims.
func ParseInvitation(tokenString string, secretKey []byte) (*InvitationClaims, error) {
	claims := &InvitationClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	return claims, nil
}

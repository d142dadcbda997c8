// Package profile maps provider profile payloads onto models.User.
//
// Each payload shape has one mapping table. A table lists, per user
// field, the JSON paths to try in order; the first non-empty value wins.
// The table is picked once from the payload's shape tag.
package profile

import (
	"fmt"
	"strings"

	errs "github.com/alexjbarnes/slack-signin/internal/errors"
	"github.com/alexjbarnes/slack-signin/internal/models"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"
)

// mapping lists candidate gjson paths for each user field.
type mapping struct {
	id     []string
	name   []string
	email  []string
	avatar []string
}

var mappings = map[models.Shape]mapping{
	models.ShapeIdentity: {
		id:     []string{"user.id"},
		name:   []string{"user.real_name", "user.profile.real_name", "user.name"},
		email:  []string{"user.profile.email", "user.email"},
		avatar: []string{"user.profile.image_192", "user.image_192", "user.image_512"},
	},
	models.ShapeOIDC: {
		// Slack namespaces its own claims under URL keys; dots in
		// them are escaped for gjson.
		id:     []string{"sub", `https://slack\.com/user_id`},
		name:   []string{"name", "given_name"},
		email:  []string{"email"},
		avatar: []string{"picture", `https://slack\.com/user_image_192`, `https://slack\.com/user_image_512`},
	},
	models.ShapeTokenUser: {
		id:     []string{"authed_user.id", "user.id", "user_id"},
		name:   []string{"user.real_name", "user.name"},
		email:  []string{"user.profile.email", "user.email"},
		avatar: []string{"user.profile.image_192", "user.image_192", "user.image_512"},
	},
}

// Normalize converts a raw profile into a User. It fails with
// ErrProfileIncomplete when no user id can be found.
func Normalize(rp *models.RawProfile) (*models.User, error) {
	if rp == nil {
		return nil, fmt.Errorf("nil profile: %w", errs.ErrProfileIncomplete)
	}

	m, ok := mappings[rp.Shape]
	if !ok {
		return nil, fmt.Errorf("unknown profile shape %q", rp.Shape)
	}

	if !gjson.ValidBytes(rp.Body) {
		return nil, fmt.Errorf("%s profile is not valid JSON: %w", rp.Shape, errs.ErrProfileIncomplete)
	}

	u := &models.User{
		ID:        first(rp.Body, m.id),
		Name:      cleanText(first(rp.Body, m.name)),
		Email:     strings.TrimSpace(first(rp.Body, m.email)),
		AvatarURL: strings.TrimSpace(first(rp.Body, m.avatar)),
	}

	if u.ID == "" {
		return nil, fmt.Errorf("%s profile: %w", rp.Shape, errs.ErrProfileIncomplete)
	}

	return u, nil
}

// first returns the first non-empty string found at paths.
func first(body []byte, paths []string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}

	return ""
}

// cleanText trims and NFC-normalizes display text so the same name
// typed on different platforms compares equal.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

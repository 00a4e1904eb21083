package account

import (
	"context"
	"encoding/json"
	"net/http"

	"polotno-studio/core"
	"polotno-studio/project"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type Controller interface {
	State() project.State
	SignIn(ctx context.Context, credential string) error
	SignOut()
}

type Backup interface {
	BackupFromLocalToCloud(ctx context.Context) (int, error)
}

type accountResponse struct {
	SignedIn bool       `json:"signedIn"`
	User     *core.User `json:"user,omitempty"`
}

func HandleGet(account core.Account) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := accountResponse{}
		if user, ok := account.User(); ok {
			resp.SignedIn = true
			resp.User = &user
		}
		render.JSON(w, r, resp)
	}
}

// HandleSignIn signs in with a session token and migrates local designs.
func HandleSignIn(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Token is required"})
			return
		}

		if err := c.SignIn(r.Context(), body.Token); err != nil {
			logrus.WithError(err).Warn("Sign-in failed")
			status := http.StatusUnauthorized
			if c.State().CloudEnabled {
				// Signed in, but the backup did not finish.
				status = http.StatusBadGateway
			}
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": "Sign-in failed"})
			return
		}
		render.JSON(w, r, c.State())
	}
}

func HandleSignOut(c Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.SignOut()
		render.JSON(w, r, c.State())
	}
}

func HandleBackup(b Backup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := b.BackupFromLocalToCloud(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Backup failed")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Backup failed"})
			return
		}
		render.JSON(w, r, map[string]int{"designsCount": count})
	}
}

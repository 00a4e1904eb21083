package auth

import (
	"context"
	"testing"
	"time"

	"polotno-studio/core"
)

var ann = core.User{Subject: "github:7", Login: "ann", Name: "Ann", Email: "ann@example.com"}

func TestMintAndParse(t *testing.T) {
	a := NewAccount("secret")
	token, err := a.Mint(ann)
	if err != nil {
		t.Fatalf("Mint() failed: %v", err)
	}

	claims, err := a.Parse(token)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if claims.Subject != ann.Subject || claims.Login != ann.Login || claims.Email != ann.Email {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	token, _ := NewAccount("one").Mint(ann)
	if _, err := NewAccount("two").Parse(token); err == nil {
		t.Error("Parse() accepted a token signed with another secret")
	}
}

func TestMint_NoSecret(t *testing.T) {
	if _, err := NewAccount("").Mint(ann); err != ErrNoSecret {
		t.Errorf("Mint() error = %v, want ErrNoSecret", err)
	}
}

func TestSignIn(t *testing.T) {
	a := NewAccount("secret")
	ctx := context.Background()

	if a.IsSignedIn() {
		t.Fatal("new account is signed in")
	}
	if err := a.SignIn(ctx, "garbage"); err == nil {
		t.Fatal("SignIn() accepted garbage")
	}

	token, _ := a.Mint(ann)
	if err := a.SignIn(ctx, token); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}
	defer a.SignOut()

	user, ok := a.User()
	if !ok || user.Subject != ann.Subject || user.ExpiresAt.IsZero() {
		t.Errorf("User() = %+v, %v", user, ok)
	}
}

func TestIsSignedIn_ChecksExpiryLive(t *testing.T) {
	a := NewAccount("secret")
	now := time.Now()
	a.now = func() time.Time { return now }

	token, _ := a.Mint(ann)
	a.SignIn(context.Background(), token)
	defer a.SignOut()

	now = now.Add(TokenTTL + time.Minute)
	if a.IsSignedIn() {
		t.Error("expired session still signed in")
	}
	if _, ok := a.User(); ok {
		t.Error("User() returned an expired session")
	}
}

func TestSubscribe(t *testing.T) {
	a := NewAccount("secret")
	var got []bool
	cancel := a.Subscribe(func(signedIn bool) { got = append(got, signedIn) })

	token, _ := a.Mint(ann)
	a.SignIn(context.Background(), token)
	a.SignOut()
	a.SignOut()
	cancel()
	a.SignIn(context.Background(), token)
	a.SignOut()

	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("notifications = %v, want [true false]", got)
	}
}

func TestSubscribe_NotifiesOnExpiry(t *testing.T) {
	a := NewAccount("secret")
	a.now = func() time.Time { return time.Now().Add(-TokenTTL + 2*time.Second) }
	token, _ := a.Mint(ann)
	a.now = time.Now

	expired := make(chan bool, 1)
	a.Subscribe(func(signedIn bool) {
		if !signedIn {
			expired <- signedIn
		}
	})
	if err := a.SignIn(context.Background(), token); err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}

	select {
	case <-expired:
	case <-time.After(5 * time.Second):
		t.Fatal("expiry was not published")
	}
	if a.IsSignedIn() {
		t.Error("still signed in after expiry")
	}
}

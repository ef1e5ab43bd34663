package sfumedia

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"lattice/internal/config"
)

func TestGenerateTURNCredentialsEmbedsExpiryAndUserID(t *testing.T) {
	username, credential := GenerateTURNCredentials("shared-secret", "usr_1", time.Hour)

	if !strings.HasSuffix(username, ":usr_1") {
		t.Fatalf("expected username to end with :usr_1, got %q", username)
	}
	if credential == "" {
		t.Fatal("expected a non-empty HMAC credential")
	}
}

func hmacCredential(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestGenerateTURNCredentialsMatchesTURNRESTScheme(t *testing.T) {
	username, credential := GenerateTURNCredentials("shared-secret", "usr_1", time.Hour)
	if got := hmacCredential("shared-secret", username); got != credential {
		t.Fatalf("expected credential to match the coturn use-auth-secret HMAC, got %q want %q", credential, got)
	}
}

func TestGenerateTURNCredentialsVaryWithSecret(t *testing.T) {
	username := "1234567890:usr_1"
	mac1 := hmacCredential("secret-a", username)
	mac2 := hmacCredential("secret-b", username)
	if mac1 == mac2 {
		t.Fatal("expected different secrets to produce different credentials")
	}
}

func TestBuildICEServersNilWithoutTURNHost(t *testing.T) {
	servers := BuildICEServers(config.TURNConfig{}, "usr_1")
	if servers != nil {
		t.Fatalf("expected nil ICE servers when no TURN host is configured, got %v", servers)
	}
}

func TestBuildICEServersIncludesStunAndTurn(t *testing.T) {
	cfg := config.TURNConfig{Host: "turn.example.com", Port: 3478, Secret: "shared-secret", TTL: time.Hour}
	servers := BuildICEServers(cfg, "usr_1")

	if len(servers) != 2 {
		t.Fatalf("expected 2 ICE servers (stun + turn), got %d", len(servers))
	}
	if !strings.HasPrefix(servers[0].URLs[0], "stun:") {
		t.Fatalf("expected first server to be stun:, got %q", servers[0].URLs[0])
	}
	if !strings.HasPrefix(servers[1].URLs[0], "turn:") {
		t.Fatalf("expected second server to be turn:, got %q", servers[1].URLs[0])
	}
	if servers[1].Username == "" || servers[1].Credential == "" {
		t.Fatal("expected the turn server entry to carry ephemeral credentials")
	}
}

package auth

import (
	"testing"
)

func TestGenerateAndValidateToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateUserToken("trainee-42")
	if err != nil {
		t.Fatalf("GenerateUserToken failed: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "trainee-42" {
		t.Errorf("unexpected user id %q", claims.UserID)
	}
	if claims.Role != "trainee" {
		t.Errorf("unexpected role %q", claims.Role)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "first-secret")
	token, err := GenerateUserToken("trainee-42")
	if err != nil {
		t.Fatalf("GenerateUserToken failed: %v", err)
	}

	t.Setenv("JWT_SECRET", "other-secret")
	if _, err := ValidateToken(token); err == nil {
		t.Error("token signed with a different secret was accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := ValidateToken("not-a-token"); err == nil {
		t.Error("garbage token was accepted")
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := GenerateUserToken("trainee-42"); err == nil {
		t.Error("token generated without a secret")
	}
}

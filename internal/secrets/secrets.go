// Package secrets resolves database connection strings stored in AWS
// Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Scheme prefixes a DSN that names a secret instead of a connection string.
const Scheme = "secretsmanager://"

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// rdsSecret is the JSON layout RDS writes for managed database credentials.
type rdsSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Engine   string `json:"engine"`
	Host     string `json:"host"`
	Port     any    `json:"port"`
	DBName   string `json:"dbname"`
}

// IsReference reports whether value names a secret.
func IsReference(value string) bool {
	return strings.HasPrefix(value, Scheme)
}

// ResolveDSN returns value unchanged unless it starts with Scheme, in which
// case the named secret is fetched and turned into a postgres DSN. The secret
// may hold a plain connection string or RDS credentials JSON.
func ResolveDSN(ctx context.Context, client API, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	id := strings.TrimPrefix(value, Scheme)
	if id == "" {
		return "", fmt.Errorf("empty secret id in %q", value)
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", id, err)
	}
	raw := strings.TrimSpace(aws.ToString(out.SecretString))
	if raw == "" {
		return "", fmt.Errorf("secret %s has no string value", id)
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var s rdsSecret
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return "", fmt.Errorf("parse secret %s: %w", id, err)
	}
	if s.Host == "" || s.Username == "" {
		return "", fmt.Errorf("secret %s: host and username are required", id)
	}
	port := "5432"
	switch p := s.Port.(type) {
	case float64:
		port = strconv.Itoa(int(p))
	case string:
		if p != "" {
			port = p
		}
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.Username, s.Password),
		Host:   net.JoinHostPort(s.Host, port),
		Path:   "/" + s.DBName,
	}
	return u.String(), nil
}

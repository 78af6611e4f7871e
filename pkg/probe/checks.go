package probe

import (
	"strings"

	"github.com/perchsec/kestrel/pkg/scan"
)

type check struct {
	Path    string
	Inspect func(resp *probeResponse) []scan.Finding
}

func defaultChecks() []check {
	return []check{
		{Path: "/", Inspect: inspectRoot},
		{Path: "/robots.txt", Inspect: inspectRobots},
		{Path: "/.env", Inspect: inspectEnvFile},
		{Path: "/.git/config", Inspect: inspectGitConfig},
		{Path: "/server-status", Inspect: inspectServerStatus},
	}
}

func inspectRoot(resp *probeResponse) []scan.Finding {
	var findings []scan.Finding
	if resp.Header.Get("Strict-Transport-Security") == "" && strings.HasPrefix(resp.URL, "https://") {
		findings = append(findings, scan.Finding{
			Severity:    "info",
			Tags:        []string{"headers", "hsts"},
			URL:         resp.URL,
			Description: "Strict-Transport-Security header is not set",
		})
	}
	if server := resp.Header.Get("Server"); server != "" && strings.ContainsAny(server, "0123456789") {
		findings = append(findings, scan.Finding{
			Severity:    "low",
			Tags:        []string{"headers", "version-disclosure"},
			URL:         resp.URL,
			Description: "Server header discloses a version: " + server,
		})
	}
	return findings
}

func inspectRobots(resp *probeResponse) []scan.Finding {
	if resp.StatusCode != 200 {
		return nil
	}
	for _, line := range strings.Split(resp.Body, "\n") {
		lowered := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(lowered, "disallow:") && (strings.Contains(lowered, "admin") || strings.Contains(lowered, "backup")) {
			return []scan.Finding{{
				Severity:    "info",
				Tags:        []string{"recon", "robots"},
				URL:         resp.URL,
				Description: "robots.txt hints at sensitive paths: " + strings.TrimSpace(line),
			}}
		}
	}
	return nil
}

func inspectEnvFile(resp *probeResponse) []scan.Finding {
	if resp.StatusCode != 200 || !strings.Contains(resp.Body, "=") {
		return nil
	}
	lowered := strings.ToLower(resp.Body)
	if !strings.Contains(lowered, "key") && !strings.Contains(lowered, "secret") && !strings.Contains(lowered, "password") && !strings.Contains(lowered, "db_") {
		return nil
	}
	return []scan.Finding{{
		Severity:    "high",
		Tags:        []string{"exposure", "secrets"},
		URL:         resp.URL,
		Description: "Environment file exposed with credential-like content",
	}}
}

func inspectGitConfig(resp *probeResponse) []scan.Finding {
	if resp.StatusCode != 200 || !strings.Contains(resp.Body, "[core]") {
		return nil
	}
	return []scan.Finding{{
		Severity:    "high",
		Tags:        []string{"exposure", "source-code"},
		URL:         resp.URL,
		Description: "Git repository metadata exposed at /.git/config",
	}}
}

func inspectServerStatus(resp *probeResponse) []scan.Finding {
	if resp.StatusCode != 200 || !strings.Contains(resp.Body, "Apache Server Status") {
		return nil
	}
	return []scan.Finding{{
		Severity:    "medium",
		Tags:        []string{"exposure", "misconfiguration"},
		URL:         resp.URL,
		Description: "Apache mod_status page publicly reachable",
	}}
}

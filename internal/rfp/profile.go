package rfp

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var naicsPattern = regexp.MustCompile(`^\d{6}$`)

// BusinessProfile is the structured profile extracted from a capability statement.
type BusinessProfile struct {
	UserID           string          `json:"userId,omitempty"`
	CompanyName      string          `json:"companyName,omitempty"`
	NAICSCodes       []string        `json:"naicsCodes"`
	Keywords         []string        `json:"keywords"`
	CoreCompetencies []string        `json:"coreCompetencies"`
	Certifications   []Certification `json:"certifications"`

	Sector          string   `json:"sector,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	ServiceAreas    []string `json:"serviceAreas,omitempty"`
	ClientTypes     []string `json:"clientTypes,omitempty"`
	PastPerformance []string `json:"pastPerformance,omitempty"`
	ConfidenceScore float64  `json:"confidenceScore,omitempty"`

	// StatementHash identifies the capability statement the profile was analyzed from.
	StatementHash string `json:"statementHash,omitempty"`
}

type Certification struct {
	Name    string `json:"name"`
	Issuer  string `json:"issuer,omitempty"`
	Expires string `json:"expires,omitempty"`
}

// DecodeProfile turns a stored profile document into a BusinessProfile.
// Decoding is lenient: absent arrays stay empty and scalars are coerced where possible.
func DecodeProfile(doc map[string]any) (*BusinessProfile, error) {
	var profile BusinessProfile

	cfg := &mapstructure.DecoderConfig{
		Result:           &profile,
		TagName:          "json",
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("create profile decoder: %w", err)
	}

	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	profile.Normalize()

	return &profile, nil
}

// Document converts the profile into the field map stored by profile stores.
func (p *BusinessProfile) Document() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal profile document: %w", err)
	}

	return doc, nil
}

// Normalize trims values, lower-cases keywords and drops NAICS codes that are not 6 digits.
func (p *BusinessProfile) Normalize() {
	codes := make([]string, 0, len(p.NAICSCodes))
	for _, code := range p.NAICSCodes {
		code = strings.TrimSpace(code)
		if naicsPattern.MatchString(code) {
			codes = append(codes, code)
		}
	}
	p.NAICSCodes = codes

	keywords := make([]string, 0, len(p.Keywords))
	for _, keyword := range p.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	p.Keywords = keywords

	certs := make([]Certification, 0, len(p.Certifications))
	for _, cert := range p.Certifications {
		cert.Name = strings.TrimSpace(cert.Name)
		if cert.Name != "" {
			certs = append(certs, cert)
		}
	}
	p.Certifications = certs

	if p.CoreCompetencies == nil {
		p.CoreCompetencies = []string{}
	}
}

// CertificationNames returns certification names in profile order.
func (p *BusinessProfile) CertificationNames() []string {
	names := make([]string, 0, len(p.Certifications))
	for _, cert := range p.Certifications {
		names = append(names, cert.Name)
	}
	return names
}

// EmbeddingText is the text the profile embedding is derived from.
func (p *BusinessProfile) EmbeddingText() string {
	return fmt.Sprintf("%s %s %s",
		p.CompanyName,
		strings.Join(p.CoreCompetencies, " "),
		strings.Join(p.Keywords, " "),
	)
}

// StatementHash fingerprints a capability statement, ignoring surrounding and repeated whitespace.
func StatementHash(statement string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(statement), " ")))
	return hex.EncodeToString(sum[:])
}

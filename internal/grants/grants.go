package grants

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	FeedURL = "https://www.grants.gov/rss/GrantsDBExtract.xml"
	Source  = "grants.gov"
	Agency  = "Federal Government"

	userAgent = "spigell/rfp-matcher"

	// Applied when an item carries no usable close date.
	defaultDueIn = 30 * 24 * time.Hour
)

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	FeedURL    string
	now        func() time.Time
}

func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		FeedURL: FeedURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger,
		UserAgent: userAgent,
		now:       time.Now,
	}
}

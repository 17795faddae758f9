package newsfeed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UnknownYear names the partition for records without a publish year.
const UnknownYear = "unknown"

// ArticleRecord is one archived article.
type ArticleRecord struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	Date        string    `json:"date"`
	Year        *int      `json:"year"`
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id"`
	PageNum     int       `json:"page_num"`
	ScrapedAt   time.Time `json:"scraped_at"`
	ContentFrom string    `json:"content_from,omitempty"`
	DateFrom    string    `json:"date_from,omitempty"`
	Keyword     string    `json:"keyword,omitempty"`
}

// PartitionKey returns the year directory the record belongs in.
func (r ArticleRecord) PartitionKey() string {
	return YearKey(r.Year)
}

// YearKey formats a year for use as a partition name.
func YearKey(year *int) string {
	if year == nil {
		return UnknownYear
	}
	return strconv.Itoa(*year)
}

// PartitionYear is a partition's year as stored in a unit: a JSON number, or
// the string "unknown".
type PartitionYear struct {
	Year *int
}

func (y PartitionYear) String() string {
	return YearKey(y.Year)
}

func (y PartitionYear) MarshalJSON() ([]byte, error) {
	if y.Year == nil {
		return json.Marshal(UnknownYear)
	}
	return json.Marshal(*y.Year)
}

func (y *PartitionYear) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		y.Year = &n
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid partition year: %s", data)
	}
	if s == UnknownYear {
		y.Year = nil
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid partition year: %q", s)
	}
	y.Year = &n
	return nil
}

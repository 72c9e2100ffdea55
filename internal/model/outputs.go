package model

// Record is a per-stage output record stored under a stage key in run state.
type Record interface {
	RecordKind() string
}

// Record kinds, also used as document kinds in the store.
const (
	KindDiscovery    = "discovery"
	KindNews         = "news"
	KindFounder      = "founder"
	KindCompetitive  = "competitive"
	KindPatent       = "patent"
	KindDeepDive     = "deepdive"
	KindVerification = "verification"
	KindInsights     = "insights"
	KindPlaceholder  = "placeholder"
)

// Placeholder stands in for the records of a stage that produced nothing
// usable. It is never mistaken for a finding.
type Placeholder struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

func (Placeholder) RecordKind() string { return KindPlaceholder }

// DiscoveryOutput is the structured result of the discovery stage.
type DiscoveryOutput struct {
	BaseURL         string            `json:"base_url"`
	DiscoveredURLs  []string          `json:"discovered_urls"`
	CompanyAliases  []string          `json:"company_aliases"`
	KeyPages        map[string]string `json:"key_pages,omitempty"`
	SocialLinks     []string          `json:"social_media_links,omitempty"`
	DigitalPresence string            `json:"digital_presence_summary"`
	KeyInsights     []string          `json:"key_insights"`
	WebsiteAnalysis string            `json:"website_analysis"`
	ConfidenceScore float64           `json:"confidence_score"`
}

func (DiscoveryOutput) RecordKind() string { return KindDiscovery }

// NewsItem is a single news article found for the company.
type NewsItem struct {
	Headline       string  `json:"headline"`
	Content        string  `json:"content"`
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
	NewsType       string  `json:"news_type"`
	DateMentioned  string  `json:"date_mentioned,omitempty"`
}

func (NewsItem) RecordKind() string { return KindNews }

// NewsOutput is the structured result of the news stage.
type NewsOutput struct {
	NewsItems              []NewsItem `json:"news_items"`
	FundingSignals         []string   `json:"funding_signals"`
	PartnershipSignals     []string   `json:"partnership_signals"`
	MarketSignals          []string   `json:"market_signals"`
	InvestmentImplications string     `json:"investment_implications"`
	ConfidenceAssessment   string     `json:"confidence_assessment"`
	ConfidenceScore        float64    `json:"confidence_score"`
}

// FounderProfile describes one member of the leadership team.
type FounderProfile struct {
	Name                 string   `json:"name"`
	Role                 string   `json:"role"`
	BackgroundSummary    string   `json:"background_summary"`
	PreviousExperience   []string `json:"previous_experience"`
	KeyAchievements      []string `json:"key_achievements"`
	EducationBackground  string   `json:"education_background,omitempty"`
	InvestmentAssessment string   `json:"investment_assessment"`
}

func (FounderProfile) RecordKind() string { return KindFounder }

// FounderOutput is the structured result of the founders stage.
type FounderOutput struct {
	FounderProfiles         []FounderProfile `json:"founder_profiles"`
	TeamCompositionAnalysis string           `json:"team_composition_analysis"`
	LeadershipAssessment    string           `json:"leadership_assessment"`
	ExecutionCapability     string           `json:"execution_capability"`
	InvestmentImplications  string           `json:"investment_implications"`
	ConfidenceScore         float64          `json:"confidence_score"`
}

// Competitor is a single competitor entry.
type Competitor struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Description    string   `json:"description"`
	Strengths      []string `json:"strengths"`
	MarketPosition string   `json:"market_position"`
	FundingStatus  string   `json:"funding_status,omitempty"`
}

// CompetitiveAnalysis is the structured result of the competitive stage.
type CompetitiveAnalysis struct {
	Competitors            []Competitor `json:"competitors"`
	MarketPositioning      string       `json:"market_positioning"`
	CompetitiveAdvantages  []string     `json:"competitive_advantages"`
	MarketThreats          []string     `json:"market_threats"`
	MarketOpportunities    []string     `json:"market_opportunities"`
	MarketInsights         []string     `json:"market_insights"`
	CompetitiveAssessment  string       `json:"competitive_assessment"`
	InvestmentImplications string       `json:"investment_implications"`
	ConfidenceScore        float64      `json:"confidence_score"`
}

func (CompetitiveAnalysis) RecordKind() string { return KindCompetitive }

// PatentRecord is a single patent or IP filing.
type PatentRecord struct {
	Title          string `json:"title"`
	Abstract       string `json:"abstract"`
	Assignee       string `json:"assignee"`
	FilingDate     string `json:"filing_date,omitempty"`
	PatentNumber   string `json:"patent_number,omitempty"`
	TechnologyArea string `json:"technology_area"`
	StrategicValue string `json:"strategic_value"`
	URL            string `json:"url,omitempty"`
}

func (PatentRecord) RecordKind() string { return KindPatent }

// PatentOutput is the structured result of the patents stage.
type PatentOutput struct {
	PatentRecords          []PatentRecord `json:"patent_records"`
	IPPortfolioAnalysis    string         `json:"ip_portfolio_analysis"`
	TechnologyFocusAreas   []string       `json:"technology_focus_areas"`
	InnovationAssessment   string         `json:"innovation_assessment"`
	CompetitiveIPLandscape string         `json:"competitive_ip_landscape"`
	InvestmentImplications string         `json:"investment_implications"`
	IPStrengthAssessment   string         `json:"ip_strength_assessment"`
	ConfidenceScore        float64        `json:"confidence_score"`
}

// ContentSource is a page analysed by the deep-dive stage.
type ContentSource struct {
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	ContentType    string   `json:"content_type"`
	KeyInsights    []string `json:"key_insights"`
	RelevanceScore float64  `json:"relevance_score"`
}

// DeepDiveAnalysis is the structured result of the content deep-dive stage.
type DeepDiveAnalysis struct {
	ContentSources         []ContentSource `json:"content_sources"`
	MissionInsights        string          `json:"mission_insights"`
	BusinessModelInsights  string          `json:"business_model_insights"`
	ProductInsights        string          `json:"product_insights"`
	MarketApproachInsights string          `json:"market_approach_insights"`
	OrganizationalInsights string          `json:"organizational_insights"`
	GrowthIndicators       []string        `json:"growth_indicators"`
	InvestmentInsights     []string        `json:"investment_insights"`
	ConfidenceScore        float64         `json:"confidence_score"`
}

func (DeepDiveAnalysis) RecordKind() string { return KindDeepDive }

// VerifiedFact is a claim with its verification outcome.
type VerifiedFact struct {
	Claim      string   `json:"claim"`
	Category   string   `json:"category,omitempty"`
	Status     string   `json:"verification_status"`
	Confidence float64  `json:"confidence_score"`
	Sources    []string `json:"sources"`
	Notes      string   `json:"notes,omitempty"`
}

// VerificationReport is the structured result of the verification stage.
type VerificationReport struct {
	VerifiedFacts              []VerifiedFact     `json:"verified_facts"`
	ConfidenceScores           map[string]float64 `json:"confidence_scores,omitempty"`
	InconsistenciesFound       []string           `json:"inconsistencies_found"`
	InformationGaps            []string           `json:"information_gaps"`
	RedFlags                   []string           `json:"red_flags"`
	SourceReliability          string             `json:"source_reliability_assessment"`
	OverallReliabilityScore    float64            `json:"overall_reliability_score"`
	VerificationSummary        string             `json:"verification_summary"`
	InvestmentRiskFactors      []string           `json:"investment_risk_factors"`
	AdditionalVerificationNeed []string           `json:"additional_verification_needed,omitempty"`
}

func (VerificationReport) RecordKind() string { return KindVerification }

// Event is a funding or partnership event derived from news.
type Event struct {
	Summary       string `json:"summary"`
	SourceID      string `json:"source_id,omitempty"`
	URL           string `json:"url,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
}

// DataSources summarises how much material fed the synthesis.
type DataSources struct {
	NewsArticles  int `json:"news_articles"`
	PatentsFound  int `json:"patents_found"`
	PagesAnalyzed int `json:"pages_analyzed"`
	VerifiedFacts int `json:"verified_facts"`
}

// Insights is the final synthesis output of a run.
type Insights struct {
	ExecutiveSummary         string      `json:"executive_summary"`
	InvestmentSignals        []string    `json:"investment_signals"`
	RiskAssessment           []string    `json:"risk_assessment"`
	FundingEvents            []Event     `json:"funding_events"`
	Partnerships             []Event     `json:"partnerships"`
	MarketPositioning        string      `json:"market_positioning"`
	InvestmentRecommendation string      `json:"investment_recommendation"`
	ConfidenceScore          float64     `json:"confidence_score"`
	Enhanced                 bool        `json:"llm_enhanced"`
	Placeholder              bool        `json:"placeholder,omitempty"`
	DataSources              DataSources `json:"data_sources"`
}

func (Insights) RecordKind() string { return KindInsights }

package stage

import "github.com/sells-group/compass-cli/internal/agent"

var (
	discoverySchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"base_url": {"type": "string"},
		"discovered_urls": {"type": "array", "items": {"type": "string"}, "maxItems": 25},
		"company_aliases": {"type": "array", "items": {"type": "string"}},
		"key_pages": {"type": "object", "additionalProperties": {"type": "string"}},
		"social_media_links": {"type": "array", "items": {"type": "string"}},
		"digital_presence_summary": {"type": "string", "minLength": 1},
		"key_insights": {"type": "array", "items": {"type": "string"}},
		"website_analysis": {"type": "string"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["discovered_urls", "company_aliases", "digital_presence_summary", "key_insights", "confidence_score"]
}`)

	newsSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"news_items": {
			"type": "array",
			"maxItems": 10,
			"items": {
				"type": "object",
				"properties": {
					"headline": {"type": "string", "minLength": 1},
					"content": {"type": "string"},
					"url": {"type": "string"},
					"relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
					"news_type": {"type": "string", "enum": ["funding", "partnership", "product", "leadership", "market", "legal", "other"]},
					"date_mentioned": {"type": "string"}
				},
				"required": ["headline", "content", "relevance_score", "news_type"]
			}
		},
		"funding_signals": {"type": "array", "items": {"type": "string"}},
		"partnership_signals": {"type": "array", "items": {"type": "string"}},
		"market_signals": {"type": "array", "items": {"type": "string"}},
		"investment_implications": {"type": "string"},
		"confidence_assessment": {"type": "string"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["news_items", "funding_signals", "partnership_signals", "market_signals", "confidence_score"]
}`)

	foundersSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"founder_profiles": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"role": {"type": "string"},
					"background_summary": {"type": "string"},
					"previous_experience": {"type": "array", "items": {"type": "string"}},
					"key_achievements": {"type": "array", "items": {"type": "string"}},
					"education_background": {"type": "string"},
					"investment_assessment": {"type": "string"}
				},
				"required": ["name", "role", "background_summary"]
			}
		},
		"team_composition_analysis": {"type": "string"},
		"leadership_assessment": {"type": "string"},
		"execution_capability": {"type": "string"},
		"investment_implications": {"type": "string"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["founder_profiles", "leadership_assessment", "confidence_score"]
}`)

	competitiveSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"competitors": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"category": {"type": "string", "enum": ["direct", "indirect", "emerging", "incumbent"]},
					"description": {"type": "string"},
					"strengths": {"type": "array", "items": {"type": "string"}},
					"market_position": {"type": "string"},
					"funding_status": {"type": "string"}
				},
				"required": ["name", "category", "description"]
			}
		},
		"market_positioning": {"type": "string"},
		"competitive_advantages": {"type": "array", "items": {"type": "string"}},
		"market_threats": {"type": "array", "items": {"type": "string"}},
		"market_opportunities": {"type": "array", "items": {"type": "string"}},
		"market_insights": {"type": "array", "items": {"type": "string"}},
		"competitive_assessment": {"type": "string"},
		"investment_implications": {"type": "string"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["competitors", "market_positioning", "competitive_advantages", "market_threats", "confidence_score"]
}`)

	patentsSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"patent_records": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"abstract": {"type": "string"},
					"assignee": {"type": "string"},
					"filing_date": {"type": "string"},
					"patent_number": {"type": "string"},
					"technology_area": {"type": "string"},
					"strategic_value": {"type": "string"},
					"url": {"type": "string"}
				},
				"required": ["title", "assignee", "technology_area"]
			}
		},
		"ip_portfolio_analysis": {"type": "string"},
		"technology_focus_areas": {"type": "array", "items": {"type": "string"}},
		"innovation_assessment": {"type": "string"},
		"competitive_ip_landscape": {"type": "string"},
		"investment_implications": {"type": "string"},
		"ip_strength_assessment": {"type": "string"},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["patent_records", "ip_portfolio_analysis", "technology_focus_areas", "confidence_score"]
}`)

	deepDiveSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"content_sources": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"url": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"content_type": {"type": "string"},
					"key_insights": {"type": "array", "items": {"type": "string"}},
					"relevance_score": {"type": "number", "minimum": 0, "maximum": 1}
				},
				"required": ["url", "title", "key_insights"]
			}
		},
		"mission_insights": {"type": "string"},
		"business_model_insights": {"type": "string"},
		"product_insights": {"type": "string"},
		"market_approach_insights": {"type": "string"},
		"organizational_insights": {"type": "string"},
		"growth_indicators": {"type": "array", "items": {"type": "string"}},
		"investment_insights": {"type": "array", "items": {"type": "string"}},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["content_sources", "business_model_insights", "product_insights", "confidence_score"]
}`)

	verificationSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"verified_facts": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"claim": {"type": "string", "minLength": 1},
					"category": {"type": "string", "enum": ["company_identity", "funding", "leadership", "product", "market", "ip", "other"]},
					"verification_status": {"type": "string", "enum": ["verified", "partially_verified", "unverified", "contradicted"]},
					"confidence_score": {"type": "number", "minimum": 0, "maximum": 1},
					"sources": {"type": "array", "items": {"type": "string"}},
					"notes": {"type": "string"}
				},
				"required": ["claim", "verification_status", "confidence_score", "sources"]
			}
		},
		"inconsistencies_found": {"type": "array", "items": {"type": "string"}},
		"information_gaps": {"type": "array", "items": {"type": "string"}},
		"red_flags": {"type": "array", "items": {"type": "string"}},
		"source_reliability_assessment": {"type": "string"},
		"overall_reliability_score": {"type": "number", "minimum": 0, "maximum": 1},
		"verification_summary": {"type": "string", "minLength": 1},
		"investment_risk_factors": {"type": "array", "items": {"type": "string"}},
		"additional_verification_needed": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["verified_facts", "inconsistencies_found", "information_gaps", "red_flags", "overall_reliability_score", "verification_summary"]
}`)

	synthesisSchema = agent.MustSchema(`{
	"type": "object",
	"properties": {
		"executive_summary": {"type": "string", "minLength": 1},
		"investment_signals": {"type": "array", "items": {"type": "string"}},
		"risk_assessment": {"type": "array", "items": {"type": "string"}},
		"market_positioning": {"type": "string"},
		"investment_recommendation": {"type": "string", "minLength": 1},
		"confidence_score": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["executive_summary", "investment_signals", "risk_assessment", "market_positioning", "investment_recommendation", "confidence_score"]
}`)
)

package ingest

import (
	"strings"
	"unicode"

	"connecta/ingest-service/internal/model"
)

// CategoryOther is assigned when no keyword matched.
const CategoryOther = "Other"

type niche struct {
	name     string
	keywords []string
}

type category struct {
	name     string
	keywords []string
	niches   []niche
}

// categories are scored in order; ties keep the earlier entry.
var categories = []category{
	{
		name: "Technology & Programming",
		keywords: []string{
			"developer", "engineer", "programmer", "software", "web", "mobile", "app",
			"frontend", "backend", "fullstack", "full-stack", "devops", "cloud",
			"javascript", "python", "java", "golang", "go", "react", "node", "angular", "vue",
			"database", "sql", "mongodb", "api", "coding", "saas", "tech",
			"cybersecurity", "blockchain", "web3", "game development", "qa", "testing",
			"data science", "machine learning", "ai", "artificial intelligence",
		},
		niches: []niche{
			{"Web Development", []string{"web developer", "frontend", "backend", "fullstack", "html", "css", "javascript"}},
			{"Mobile Development", []string{"mobile", "ios", "android", "react native", "flutter", "swift", "kotlin"}},
			{"Software Engineering", []string{"software engineer", "programmer", "coding", "development", "golang"}},
			{"Data Science", []string{"data scientist", "machine learning", "ai", "analytics", "big data"}},
			{"DevOps & Cloud", []string{"devops", "cloud", "aws", "azure", "docker", "kubernetes"}},
			{"Cybersecurity", []string{"security", "cybersecurity", "penetration testing", "ethical hacking"}},
			{"Blockchain & Web3", []string{"blockchain", "web3", "crypto", "smart contract", "solidity"}},
		},
	},
	{
		name: "Design & Creative",
		keywords: []string{
			"designer", "design", "ui", "ux", "graphic", "creative", "photoshop",
			"illustrator", "figma", "sketch", "branding", "logo", "visual",
			"3d", "animation", "video", "illustration", "art", "creative director",
			"product design", "fashion design", "interior design",
		},
		niches: []niche{
			{"Graphic Design", []string{"graphic design", "photoshop", "illustrator"}},
			{"UI/UX Design", []string{"ui", "ux", "user interface", "user experience", "figma", "sketch"}},
			{"Logo & Branding", []string{"logo", "branding", "brand identity"}},
			{"3D Modeling & Rendering", []string{"3d", "modeling", "rendering", "blender"}},
			{"Video Production", []string{"video", "videographer", "video production"}},
			{"Animation", []string{"animation", "animator", "motion graphics"}},
		},
	},
	{
		name: "Marketing & Sales",
		keywords: []string{
			"marketing", "sales", "seo", "sem", "social media", "digital marketing",
			"content marketing", "email marketing", "advertising", "ppc", "analytics",
			"copywriting", "market research", "brand", "campaign", "lead generation",
			"business development", "affiliate", "public relations", "pr",
		},
		niches: []niche{
			{"Digital Marketing", []string{"digital marketing", "online marketing"}},
			{"Social Media Marketing", []string{"social media", "instagram", "facebook", "twitter", "linkedin"}},
			{"SEO & SEM", []string{"seo", "sem", "search engine", "google ads"}},
			{"Content Marketing", []string{"content marketing", "content strategy"}},
			{"Sales & Business Dev", []string{"sales", "business development", "lead generation"}},
		},
	},
	{
		name: "Business & Finance",
		keywords: []string{
			"accountant", "finance", "accounting", "bookkeeping", "financial",
			"business analyst", "consultant", "project manager", "admin",
			"virtual assistant", "data entry", "legal", "lawyer", "attorney",
			"hr", "human resources", "recruiting", "recruitment", "supply chain",
		},
		niches: []niche{
			{"Accounting & Bookkeeping", []string{"accounting", "bookkeeping", "accountant"}},
			{"Financial Analysis", []string{"financial analyst", "finance"}},
			{"Project Management", []string{"project manager", "scrum master", "agile"}},
			{"Virtual Assistant", []string{"virtual assistant", "va", "admin assistant"}},
			{"Legal Consulting", []string{"legal", "lawyer", "attorney"}},
			{"HR & Recruiting", []string{"hr", "human resources", "recruiter", "recruitment"}},
		},
	},
	{
		name: "Writing & Translation",
		keywords: []string{
			"writer", "writing", "content writer", "copywriter", "editor",
			"translator", "translation", "proofreading", "technical writer",
			"blogger", "journalist", "author", "creative writing", "grant writing",
		},
		niches: []niche{
			{"Copywriting", []string{"copywriter", "copywriting"}},
			{"Content Writing", []string{"content writer", "content writing", "blogger"}},
			{"Technical Writing", []string{"technical writer", "documentation"}},
			{"Translation", []string{"translator", "translation"}},
			{"Editing & Proofreading", []string{"editor", "proofreading", "editing"}},
		},
	},
	{
		name: "Hospitality & Events",
		keywords: []string{
			"hotel", "hospitality", "event", "catering", "restaurant", "chef",
			"cook", "waiter", "bartender", "tour guide", "travel", "tourism",
			"event planner", "event coordinator",
		},
		niches: []niche{
			{"Hotel Management", []string{"hotel", "hotel management"}},
			{"Event Planning", []string{"event planning", "event coordinator"}},
			{"Catering", []string{"catering", "chef", "cook"}},
			{"Travel Planning", []string{"travel", "tourism", "tour guide"}},
		},
	},
	{
		name: "Health & Fitness",
		keywords: []string{
			"health", "fitness", "trainer", "coach", "nutrition", "wellness",
			"yoga", "personal trainer", "gym", "medical", "nurse", "doctor",
			"healthcare", "physiotherapy", "telehealth",
		},
		niches: []niche{
			{"Personal Training", []string{"personal trainer", "fitness trainer"}},
			{"Nutrition Consulting", []string{"nutrition", "nutritionist", "dietitian"}},
			{"Wellness Coaching", []string{"wellness", "health coach"}},
			{"Yoga Instruction", []string{"yoga", "yoga instructor"}},
			{"Telehealth", []string{"telehealth", "telemedicine"}},
		},
	},
	{
		name: "Education & Training",
		keywords: []string{
			"teacher", "tutor", "instructor", "education", "training",
			"course", "curriculum", "e-learning", "online teaching",
			"lecturer", "professor", "academic",
		},
		niches: []niche{
			{"Tutoring", []string{"tutor", "tutoring"}},
			{"Online Course Creation", []string{"course creation", "e-learning"}},
			{"Language Instruction", []string{"language teacher", "language instructor"}},
			{"Educational Consulting", []string{"educational consultant"}},
		},
	},
}

// Classification is the outcome of Classify.
type Classification struct {
	Category string
	Niche    string // empty when no niche keyword matched
}

// Classify scores title, description and skills against the keyword table
// and returns the best category and, within it, the best niche. Keywords
// match whole words only.
func Classify(g *model.ExternalGig) Classification {
	text := searchText(g.Title, g.Description, strings.Join(g.Skills, " "))

	best := Classification{Category: CategoryOther}
	bestScore := 0
	for _, c := range categories {
		score := countMatches(text, c.keywords)
		if score <= bestScore {
			continue
		}
		bestScore = score
		best = Classification{Category: c.name}

		nicheScore := 0
		for _, n := range c.niches {
			if s := countMatches(text, n.keywords); s > nicheScore {
				nicheScore = s
				best.Niche = n.name
			}
		}
	}
	return best
}

// needsClassification reports whether the category carried by the posting
// is missing or a placeholder.
func needsClassification(category string) bool {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "", "general", strings.ToLower(CategoryOther):
		return true
	}
	return false
}

// searchText lowercases the inputs and reduces them to space-separated
// words, padded so that " kw " matches whole words and phrases.
func searchText(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, " "))
	words := strings.FieldsFunc(joined, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	return " " + strings.Join(words, " ") + " "
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, " "+kw+" ") {
			n++
		}
	}
	return n
}

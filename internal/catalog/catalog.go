// Package catalog holds the fixed storefront data: the governorate to area
// table and the two bracelet variants.
package catalog

type VariantID string

const (
	VariantNone     VariantID = ""
	VariantStraight VariantID = "straight"
	VariantCurved   VariantID = "curved"
)

type Variant struct {
	ID          VariantID
	Label       string
	Title       string
	Description string
	Image       string
}

var variants = []Variant{
	{
		ID:          VariantStraight,
		Label:       "مستقيم",
		Title:       "التصميم الأول - مستقيم",
		Description: "نقوش مصرية تقليدية على سطح مستقيم",
		Image:       "/two.jpg",
	},
	{
		ID:          VariantCurved,
		Label:       "منحني",
		Title:       "التصميم الثاني - منحني",
		Description: "نقوش مصرية على سطح منحني أنيق",
		Image:       "/one.jpg",
	},
}

type governorate struct {
	name  string
	areas []string
}

// Display order matters: the form lists governorates and areas as declared.
var governorates = []governorate{
	{
		name:  "القاهرة",
		areas: []string{"مدينة نصر", "التجمع الخامس", "المعادي", "الزمالك", "مصر الجديدة", "شبرا", "عين شمس", "حلوان", "المقطم"},
	},
	{
		name:  "الجيزة",
		areas: []string{"الدقي", "المهندسين", "فيصل", "الهرم", "أكتوبر", "الشيخ زايد", "الحوامدية", "إمبابة"},
	},
	{
		name:  "الإسكندرية",
		areas: []string{"محرم بك", "سيدي جابر", "سموحة", "المنتزه", "العجمي", "برج العرب", "الإبراهيمية", "كرموز"},
	},
}

// Governorates returns the governorate names in display order.
func Governorates() []string {
	names := make([]string, 0, len(governorates))
	for _, g := range governorates {
		names = append(names, g.name)
	}
	return names
}

// Areas returns the ordered areas of a governorate, or nil when the
// governorate is empty or unknown.
func Areas(name string) []string {
	for _, g := range governorates {
		if g.name == name {
			out := make([]string, len(g.areas))
			copy(out, g.areas)
			return out
		}
	}
	return nil
}

func HasGovernorate(name string) bool {
	for _, g := range governorates {
		if g.name == name {
			return true
		}
	}
	return false
}

func HasArea(governorateName, area string) bool {
	for _, a := range Areas(governorateName) {
		if a == area {
			return true
		}
	}
	return false
}

// Variants returns both bracelet variants in display order.
func Variants() []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	return out
}

func LookupVariant(id VariantID) (Variant, bool) {
	for _, v := range variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

type Spec struct {
	Name  string
	Value string
}

var specs = []Spec{
	{Name: "المادة", Value: "نحاس أصلي عالي الجودة"},
	{Name: "الطلاء", Value: "نيكل مقاوم للصدأ والتغير اللوني"},
	{Name: "المقاس", Value: "قابل للتعديل ليناسب جميع المقاسات"},
	{Name: "اللون", Value: "فضي لامع"},
	{Name: "الجنس", Value: "مناسب للرجال والنساء"},
	{Name: "المتانة", Value: "مقاوم للتآكل والاستخدام اليومي"},
}

// Specs lists the product details shown under the variants.
func Specs() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

package consts

import "fmt"

// Category 市场分类（压缩账户中以 u8 存储）
type Category uint8

const (
	CategoryPolitics Category = iota
	CategorySports
	CategoryCrypto
	CategoryEntertainment
	CategoryWeather
	CategoryEconomy
	CategoryOther

	categoryCount
)

// Region 市场所属地区（压缩账户中以 u8 存储）
type Region uint8

const (
	RegionGlobal Region = iota
	RegionWestAfrica
	RegionEastAfrica
	RegionSouthernAfrica
	RegionNorthAfrica
	RegionCaribbean
	RegionLatinAmerica
	RegionSouthAsia
	RegionSoutheastAsia

	regionCount
)

const UnknownName = "unknown"

// CategoryNames 与 Category 一一对应，下标即编码
var CategoryNames = [categoryCount]string{
	"Politics",      // 0
	"Sports",        // 1
	"Crypto",        // 2
	"Entertainment", // 3
	"Weather",       // 4
	"Economy",       // 5
	"Other",         // 6
}

// RegionNames 与 Region 一一对应，下标即编码
var RegionNames = [regionCount]string{
	"Global",          // 0
	"West Africa",     // 1
	"East Africa",     // 2
	"Southern Africa", // 3
	"North Africa",    // 4
	"Caribbean",       // 5
	"Latin America",   // 6
	"South Asia",      // 7
	"Southeast Asia",  // 8
}

var (
	categoryByName = make(map[string]Category, categoryCount)
	regionByName   = make(map[string]Region, regionCount)
)

// init 构建反向映射并校验名称唯一、非空
func init() {
	for i, name := range CategoryNames {
		if name == "" {
			panic(fmt.Sprintf("category %d has no name", i))
		}
		if _, dup := categoryByName[name]; dup {
			panic(fmt.Sprintf("duplicate category name %q", name))
		}
		categoryByName[name] = Category(i)
	}
	for i, name := range RegionNames {
		if name == "" {
			panic(fmt.Sprintf("region %d has no name", i))
		}
		if _, dup := regionByName[name]; dup {
			panic(fmt.Sprintf("duplicate region name %q", name))
		}
		regionByName[name] = Region(i)
	}
}

func (c Category) Valid() bool {
	return c < categoryCount
}

func (c Category) String() string {
	if c.Valid() {
		return CategoryNames[c]
	}
	return UnknownName
}

func (r Region) Valid() bool {
	return r < regionCount
}

func (r Region) String() string {
	if r.Valid() {
		return RegionNames[r]
	}
	return UnknownName
}

// CategoryFromName 名称 -> 编码，未知名称返回 false
func CategoryFromName(name string) (Category, bool) {
	c, ok := categoryByName[name]
	return c, ok
}

// RegionFromName 名称 -> 编码，未知名称返回 false
func RegionFromName(name string) (Region, bool) {
	r, ok := regionByName[name]
	return r, ok
}

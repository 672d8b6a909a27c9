package catalog

// Category groups store items by how a purchase is applied.
type Category string

const (
	Food     Category = "food"
	Toy      Category = "toy"
	Clothing Category = "clothing"
)

// StoreItem is immutable reference data for the in-app store.
type StoreItem struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"type"`
	Price       int      `json:"price"`
	Icon        string   `json:"icon"`
	Description string   `json:"description"`
	Musical     bool     `json:"musical,omitempty"`
}

var items = []StoreItem{
	{ID: "apple", Name: "Apple", Category: Food, Price: 5, Icon: "🍎", Description: "Healthy!"},
	{ID: "banana", Name: "Nanna", Category: Food, Price: 6, Icon: "🍌", Description: "Potassium!"},
	{ID: "water", Name: "Wawa", Category: Food, Price: 3, Icon: "💧", Description: "Hydration!"},
	{ID: "cookie", Name: "Cookie", Category: Food, Price: 10, Icon: "🍪", Description: "Treat!"},
	{ID: "pizza", Name: "Pitha", Category: Food, Price: 15, Icon: "🍕", Description: "Yummy!"},
	{ID: "juice", Name: "Juice", Category: Food, Price: 8, Icon: "🧃", Description: "Sweet!"},

	{ID: "hat_red", Name: "Red Cap", Category: Clothing, Price: 50, Icon: "🧢", Description: "Cool hat."},
	{ID: "sunglasses", Name: "Shades", Category: Clothing, Price: 30, Icon: "🕶️", Description: "Cool."},
	{ID: "raincoat", Name: "Raincoat", Category: Clothing, Price: 75, Icon: "🧥", Description: "Dry!"},
	{ID: "wintercoat", Name: "Puffy Coat", Category: Clothing, Price: 80, Icon: "🧣", Description: "Warm!"},
	{ID: "swimsuit", Name: "Swimmies", Category: Clothing, Price: 60, Icon: "🩳", Description: "Splash!"},
	{ID: "costume", Name: "Costume", Category: Clothing, Price: 100, Icon: "🦸", Description: "Hero!"},

	{ID: "ball_blue", Name: "Ball", Category: Toy, Price: 20, Icon: "🔵", Description: "Bounce!"},
	{ID: "teddy", Name: "Teddy", Category: Toy, Price: 25, Icon: "🧸", Description: "Hug!"},
	{ID: "truck", Name: "Truck", Category: Toy, Price: 35, Icon: "🚒", Description: "Beep!"},
	{ID: "drum", Name: "Drum", Category: Toy, Price: 45, Icon: "🥁", Description: "Bang!", Musical: true},
	{ID: "crayons", Name: "Crayons", Category: Toy, Price: 15, Icon: "🖍️", Description: "Draw!"},
	{ID: "xylophone", Name: "Xylophone", Category: Toy, Price: 50, Icon: "🎹", Description: "Music!", Musical: true},
}

// Items returns a copy of the store catalog.
func Items() []StoreItem {
	return append([]StoreItem(nil), items...)
}

// FindItem looks up a catalog entry by id.
func FindItem(id string) (StoreItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return StoreItem{}, false
}

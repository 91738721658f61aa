package ledger

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	users "github.com/goliatone/go-users"
)

// Controller exposes categories, assets and sum ups over HTTP
type Controller struct {
	service *Service
}

func NewController(service *Service) *Controller {
	if service == nil {
		panic("Missing Service in ledger controller...")
	}
	return &Controller{service: service}
}

// RegisterRoutes mounts the ledger endpoints on router. Every route is
// behind protected.
func (lc *Controller) RegisterRoutes(router fiber.Router, protected fiber.Handler) {
	router.Get("/categories", protected, lc.Categories).Name("ledger.categories")

	assets := router.Group("/assets", protected)
	assets.Get("/", lc.ListAssets).Name("ledger.assets.list")
	assets.Post("/", lc.CreateAsset).Name("ledger.assets.create")
	assets.Get("/summary", lc.Summary).Name("ledger.assets.summary")
	assets.Get("/:id<int>", lc.GetAsset).Name("ledger.assets.get")
	assets.Put("/:id<int>", lc.UpdateAsset).Name("ledger.assets.update")
	assets.Delete("/:id<int>", lc.DeleteAsset).Name("ledger.assets.delete")

	sumups := router.Group("/sumups", protected)
	sumups.Get("/", lc.ListSumUps).Name("ledger.sumups.list")
	sumups.Post("/", lc.CreateSumUp).Name("ledger.sumups.create")
	sumups.Get("/trade_types", lc.TradeTypes).Name("ledger.sumups.trade_types")
	sumups.Delete("/:id<int>", lc.DeleteSumUp).Name("ledger.sumups.delete")
}

// AssetPage is a page of assets
type AssetPage struct {
	Count   int      `json:"count"`
	Results []*Asset `json:"results"`
}

func (lc *Controller) Categories(c *fiber.Ctx) error {
	records, err := lc.service.Categories(c.UserContext(), Transaction(c.Query("transaction")))
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (lc *Controller) ListAssets(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	filter := AssetFilter{
		Transaction: Transaction(c.Query("transaction")),
		Limit:       c.QueryInt("limit", MaxPageSize),
		Offset:      c.QueryInt("offset", 0),
	}

	records, total, err := lc.service.ListAssets(c.UserContext(), owner, filter)
	if err != nil {
		return err
	}
	return c.JSON(AssetPage{Count: total, Results: records})
}

func (lc *Controller) CreateAsset(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	in := AssetInput{}
	if err := c.BodyParser(&in); err != nil {
		return users.NewBadInput("malformed JSON body")
	}

	record, err := lc.service.CreateAsset(c.UserContext(), owner, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (lc *Controller) GetAsset(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	id, err := recordID(c)
	if err != nil {
		return err
	}

	record, err := lc.service.GetAsset(c.UserContext(), owner, id)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (lc *Controller) UpdateAsset(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	id, err := recordID(c)
	if err != nil {
		return err
	}

	in := AssetInput{}
	if err := c.BodyParser(&in); err != nil {
		return users.NewBadInput("malformed JSON body")
	}

	record, err := lc.service.UpdateAsset(c.UserContext(), owner, id, in)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

func (lc *Controller) DeleteAsset(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	id, err := recordID(c)
	if err != nil {
		return err
	}

	if err := lc.service.DeleteAsset(c.UserContext(), owner, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (lc *Controller) Summary(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	summary, err := lc.service.Summary(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

func (lc *Controller) ListSumUps(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	records, err := lc.service.ListSumUps(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (lc *Controller) CreateSumUp(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	in := SumUpInput{}
	if err := c.BodyParser(&in); err != nil {
		return users.NewBadInput("malformed JSON body")
	}

	record, err := lc.service.CreateSumUp(c.UserContext(), owner, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

func (lc *Controller) DeleteSumUp(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	id, err := recordID(c)
	if err != nil {
		return err
	}

	if err := lc.service.DeleteSumUp(c.UserContext(), owner, id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (lc *Controller) TradeTypes(c *fiber.Ctx) error {
	owner, err := requestOwner(c)
	if err != nil {
		return err
	}

	groups, err := lc.service.TradeTypes(c.UserContext(), owner)
	if err != nil {
		return err
	}
	return c.JSON(groups)
}

func requestOwner(c *fiber.Ctx) (*users.User, error) {
	user, ok := users.FromContext(c.UserContext())
	if !ok {
		return nil, users.ErrMissingToken
	}
	return user, nil
}

func recordID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, users.NewBadInput("id must be a positive integer")
	}
	return id, nil
}

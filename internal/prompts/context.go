package prompts

// Template names in the catalogue.
const (
	RepositoryTemplate  = "repository"
	ServiceTemplate     = "service"
	ModelTemplate       = "model"
	ControllerTemplate  = "controller"
	ApplicationTemplate = "application"
	SecurityTemplate    = "security"
	WebTemplate         = "web"
	SettingsTemplate    = "settings"
	DescriptorTemplate  = "descriptor"
)

// Context is the typed input of one template. The Package field of every
// context is filled in by the Renderer.
type Context interface {
	templateName() string
	withPackage(pkg string) any
}

// RepositoryContext renders a Spring Data JPA repository interface.
type RepositoryContext struct {
	Package string
	Source  string
}

func (c RepositoryContext) templateName() string { return RepositoryTemplate }
func (c RepositoryContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

// ServiceContext renders a service implementation class.
type ServiceContext struct {
	Package   string
	ClassName string
	Source    string
}

func (c ServiceContext) templateName() string { return ServiceTemplate }
func (c ServiceContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

// ModelContext renders a JPA entity. DbContext carries every DbContext
// source in the project so relationships can be mapped.
type ModelContext struct {
	Package   string
	Source    string
	DbContext string
}

func (c ModelContext) templateName() string { return ModelTemplate }
func (c ModelContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

// ControllerContext renders a REST controller.
type ControllerContext struct {
	Package string
	Source  string
}

func (c ControllerContext) templateName() string { return ControllerTemplate }
func (c ControllerContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

// EntryPointContext renders one of the three artifacts generated from
// Program.cs. Kind selects which.
type EntryPointContext struct {
	Kind      string // ApplicationTemplate, SecurityTemplate or WebTemplate
	Package   string
	ClassName string
	Program   string
	Startup   string
	Csproj    string
}

func (c EntryPointContext) templateName() string { return c.Kind }
func (c EntryPointContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

// SettingsContext renders application.properties.
type SettingsContext struct {
	Package string
	Source  string
}

func (c SettingsContext) templateName() string { return SettingsTemplate }
func (c SettingsContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

// DescriptorContext renders pom.xml.
type DescriptorContext struct {
	Package string
	Source  string
}

func (c DescriptorContext) templateName() string { return DescriptorTemplate }
func (c DescriptorContext) withPackage(pkg string) any {
	c.Package = pkg
	return c
}

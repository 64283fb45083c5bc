package enrich

// defaultTaxonomy is used when enrich.taxonomy_path is not configured.
const defaultTaxonomy = `version: "2025.1"
categories:
  - code: IFT.PAY
    name: Payments
    children:
      - code: IFT.PAY.PROC
        name: Payment processing and acquiring
      - code: IFT.PAY.XB
        name: Cross-border payments and FX
      - code: IFT.PAY.B2B
        name: B2B payments and accounts payable automation
  - code: IFT.LEND
    name: Lending
    children:
      - code: IFT.LEND.CONS
        name: Consumer lending
      - code: IFT.LEND.SMB
        name: Small business lending
      - code: IFT.LEND.INFRA
        name: Loan origination and servicing software
  - code: IFT.BANK
    name: Banking infrastructure
    children:
      - code: IFT.BANK.CORE
        name: Core banking platforms
      - code: IFT.BANK.BAAS
        name: Banking as a service
  - code: IFT.RCI
    name: Risk, compliance and identity
    children:
      - code: IFT.RCI.ID
        name: Identity verification
        children:
          - code: IFT.RCI.ID.KYC
            name: Know your customer
          - code: IFT.RCI.ID.KYB
            name: Know your business
            children:
              - code: IFT.RCI.ID.KYB.BASIC_PROFILE
                name: Business registry and basic profile verification
              - code: IFT.RCI.ID.KYB.UBO
                name: Ultimate beneficial ownership discovery
      - code: IFT.RCI.AML
        name: Anti-money laundering and transaction monitoring
      - code: IFT.RCI.FRAUD
        name: Fraud prevention
  - code: IFT.WEALTH
    name: Wealth and asset management
    children:
      - code: IFT.WEALTH.ADV
        name: Advisory platforms
      - code: IFT.WEALTH.PE
        name: Private equity and venture capital
  - code: IFT.INS
    name: Insurance technology
  - code: IFT.DATA
    name: Financial data and analytics
  - code: IFT.SVC
    name: Professional services
    children:
      - code: IFT.SVC.MKT
        name: Marketing and advertising services
        description: not a financial technology provider
      - code: IFT.SVC.CONSULT
        name: Consulting
`
